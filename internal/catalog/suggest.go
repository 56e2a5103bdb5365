package catalog

import "strings"

// Suggest returns the default category name for a product name, or ""
// when nothing matches. Matching ignores case: exact names first, then
// keywords contained in the name.
func Suggest(productName string) string {
	name := strings.ToLower(strings.TrimSpace(productName))
	if name == "" {
		return ""
	}

	if cat, ok := exactMatch[name]; ok {
		return cat
	}

	for _, entry := range keywordMatches {
		if strings.Contains(name, entry.keyword) {
			return entry.category
		}
	}
	return ""
}

var exactMatch = map[string]string{
	// Fruits
	"apple":       "Fruits",
	"apples":      "Fruits",
	"banana":      "Fruits",
	"bananas":     "Fruits",
	"orange":      "Fruits",
	"oranges":     "Fruits",
	"lemon":       "Fruits",
	"lime":        "Fruits",
	"pear":        "Fruits",
	"peach":       "Fruits",
	"mango":       "Fruits",
	"pineapple":   "Fruits",
	"grapes":      "Fruits",
	"watermelon":  "Fruits",
	"strawberries": "Fruits",
	"blueberries": "Fruits",
	"lingonberries": "Fruits",

	// Vegetables
	"carrot":    "Vegetables",
	"carrots":   "Vegetables",
	"broccoli":  "Vegetables",
	"potato":    "Vegetables",
	"potatoes":  "Vegetables",
	"onion":     "Vegetables",
	"onions":    "Vegetables",
	"tomato":    "Vegetables",
	"tomatoes":  "Vegetables",
	"cucumber":  "Vegetables",
	"lettuce":   "Vegetables",
	"spinach":   "Vegetables",
	"kale":      "Vegetables",
	"celery":    "Vegetables",
	"zucchini":  "Vegetables",
	"asparagus": "Vegetables",
	"cabbage":   "Vegetables",
	"beetroot":  "Vegetables",

	// Dairy
	"milk":    "Dairy",
	"cheese":  "Dairy",
	"butter":  "Dairy",
	"yogurt":  "Dairy",
	"cream":   "Dairy",
	"eggs":    "Dairy",
	"quark":   "Dairy",

	// Meat
	"chicken": "Meat",
	"venison": "Meat",
	"beef":    "Meat",
	"pork":    "Meat",
	"turkey":  "Meat",
	"bacon":   "Meat",
	"sausage": "Meat",
	"ham":     "Meat",
	"lamb":    "Meat",
	"steak":   "Meat",

	// Bakery
	"bread":      "Bakery",
	"kalakukko":  "Bakery",
	"bagels":     "Bakery",
	"rolls":      "Bakery",
	"buns":       "Bakery",
	"croissants": "Bakery",
	"muffins":    "Bakery",
	"rye bread":  "Bakery",

	// Beverages
	"coffee": "Beverages",
	"tea":    "Beverages",
	"water":  "Beverages",
	"juice":  "Beverages",
	"soda":   "Beverages",
	"beer":   "Beverages",
	"wine":   "Beverages",

	// Snacks
	"chips":    "Snacks",
	"pretzels": "Snacks",
	"popcorn":  "Snacks",
	"crackers": "Snacks",
	"cookies":  "Snacks",
	"candy":    "Snacks",

	// Frozen Foods
	"ice cream":     "Frozen Foods",
	"frozen pizza":  "Frozen Foods",
	"frozen peas":   "Frozen Foods",

	// Condiments
	"ketchup":   "Condiments",
	"mustard":   "Condiments",
	"mayo":      "Condiments",
	"guacamole": "Condiments",
	"salsa":     "Condiments",
	"soy sauce": "Condiments",

	// Seafood
	"salmon":  "Seafood",
	"herring": "Seafood",
	"tuna":    "Seafood",
	"shrimp":  "Seafood",
	"cod":     "Seafood",
	"crab":    "Seafood",

	// Grains
	"rice":    "Grains",
	"bulgur":  "Grains",
	"oats":    "Grains",
	"quinoa":  "Grains",
	"barley":  "Grains",
	"couscous": "Grains",
	"pasta":   "Grains",

	// Spices
	"cinnamon": "Spices",
	"cardamom": "Spices",
	"pepper":   "Spices",
	"black pepper": "Spices",
	"paprika":  "Spices",
	"cumin":    "Spices",
	"nutmeg":   "Spices",

	// Nuts
	"almonds":  "Nuts",
	"walnuts":  "Nuts",
	"cashews":  "Nuts",
	"peanuts":  "Nuts",
	"pecans":   "Nuts",

	// Legumes
	"lentils":    "Legumes",
	"chickpeas":  "Legumes",
	"beans":      "Legumes",
	"split peas": "Legumes",

	// Herbs
	"basil":    "Herbs",
	"parsley":  "Herbs",
	"dill":     "Herbs",
	"cilantro": "Herbs",
	"mint":     "Herbs",
	"thyme":    "Herbs",
	"rosemary": "Herbs",
}

type keywordEntry struct {
	keyword  string
	category string
}

// keywordMatches is ordered so longer, more specific keywords win.
var keywordMatches = []keywordEntry{
	{"ice cream", "Frozen Foods"},
	{"frozen", "Frozen Foods"},
	{"ground beef", "Meat"},
	{"chicken", "Meat"},
	{"sausage", "Meat"},
	{"steak", "Meat"},
	{"cream cheese", "Dairy"},
	{"sour cream", "Dairy"},
	{"yogurt", "Dairy"},
	{"cheese", "Dairy"},
	{"milk", "Dairy"},
	{"salmon", "Seafood"},
	{"fish", "Seafood"},
	{"shrimp", "Seafood"},
	{"bread", "Bakery"},
	{"coffee", "Beverages"},
	{"juice", "Beverages"},
	{"water", "Beverages"},
	{"tea", "Beverages"},
	{"chips", "Snacks"},
	{"cookie", "Snacks"},
	{"sauce", "Condiments"},
	{"dressing", "Condiments"},
	{"rice", "Grains"},
	{"flour", "Grains"},
	{"noodle", "Grains"},
	{"ground ", "Spices"},
	{"nut", "Nuts"},
	{"bean", "Legumes"},
	{"lentil", "Legumes"},
	{"berries", "Fruits"},
	{"apple", "Fruits"},
	{"lettuce", "Vegetables"},
	{"pepper", "Vegetables"},
	{"fresh ", "Herbs"},
}
