package domain

import "time"

// Canteen - a canteen served by the menu source.
type Canteen struct {
	ID   int
	Name string
}

// Prices - meal prices per customer group, nil when not offered.
type Prices struct {
	Students  *float64
	Employees *float64
	Pupils    *float64
	Others    *float64
}

// Meal - one dish of a day.
type Meal struct {
	ID       int
	Name     string
	Category string
	Notes    []string
	Prices   Prices
}

// MinMainPrice - meals with a student price at or below it are sides.
const MinMainPrice = 1.0

// IsMain reports whether the meal is a main dish.
func (m Meal) IsMain() bool {
	return m.Prices.Students != nil && *m.Prices.Students > MinMainPrice
}

// MenuLine - meals of one category (canteen line).
type MenuLine struct {
	Name  string
	Meals []Meal
}

// Menu - main dishes of one day grouped by line.
type Menu struct {
	Canteen Canteen
	Date    time.Time
	Lines   []MenuLine
}

// GroupMains keeps main dishes and groups them by category in input order.
func GroupMains(meals []Meal) []MenuLine {
	var lines []MenuLine
	index := make(map[string]int)
	for _, meal := range meals {
		if !meal.IsMain() {
			continue
		}
		i, ok := index[meal.Category]
		if !ok {
			i = len(lines)
			index[meal.Category] = i
			lines = append(lines, MenuLine{Name: meal.Category})
		}
		lines[i].Meals = append(lines[i].Meals, meal)
	}
	return lines
}
