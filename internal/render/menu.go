package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/Xausdorf/mensa-bot/internal/domain"
)

// LineFilter selects which canteen lines a menu view shows.
type LineFilter string

const (
	RegularLines LineFilter = "Linie"
	L6Lines      LineFilter = "L6 Update"
)

const fullMenuURL = "https://openmensa.org/c/%d/%s"

var symbols = []struct {
	keyword string
	symbol  string
}{
	{"vegan", "🍃"},
	{"vegetarisch", "🥕"},
	{"fleisch", "🥩"},
	{"steak", "🥩"},
	{"wurst", "🥩"},
	{"hnchen", "🐔"},
	{"schwein", "🐖"},
	{"rinder", "🐄"},
}

// Symbol picks a meal symbol from the first note, falling back to the meal name.
func Symbol(meal domain.Meal) string {
	if len(meal.Notes) > 0 {
		note := strings.ToLower(meal.Notes[0])
		for _, s := range symbols {
			if strings.Contains(note, s.keyword) {
				return s.symbol
			}
		}
	}
	for _, s := range symbols {
		if strings.Contains(meal.Name, s.keyword) {
			return s.symbol
		}
	}
	return ""
}

// Price formats the student price.
func Price(meal domain.Meal) string {
	if meal.Prices.Students == nil {
		return "-"
	}
	return fmt.Sprintf("%4.2f €", *meal.Prices.Students)
}

// MenuView renders the lines of a day that match the filter.
func MenuView(menu *domain.Menu, filter LineFilter) string {
	var b strings.Builder
	if filter == RegularLines {
		fmt.Fprintf(&b, "**%s** 🍴\n**Menu for %s**\n", menu.Canteen.Name, menu.Date.Format("Monday, January 2, 2006"))
	}

	shown := 0
	for _, line := range menu.Lines {
		if !strings.Contains(line.Name, string(filter)) {
			continue
		}
		shown++
		fmt.Fprintf(&b, "\n**%s**:", line.Name)
		for _, meal := range line.Meals {
			fmt.Fprintf(&b, "\n▫ %s", meal.Name)
			if symbol := Symbol(meal); symbol != "" {
				b.WriteString(" ")
				b.WriteString(symbol)
			}
			fmt.Fprintf(&b, " (%s)", Price(meal))
		}
		b.WriteString("\n")
	}
	if shown == 0 {
		b.WriteString("\nNo menu available.\n")
	}

	fmt.Fprintf(&b, "\n[Full menu](%s)", FullMenuURL(menu.Canteen.ID, menu.Date))
	return b.String()
}

func FullMenuURL(canteenID int, date time.Time) string {
	return fmt.Sprintf(fullMenuURL, canteenID, date.Format(time.DateOnly))
}
