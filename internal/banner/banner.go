package banner

import (
	"bookload/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
    __                __   __                __
   / /_  ____  ____  / /__/ /   ____  ____ _/ /
  / __ \/ __ \/ __ \/ //_/ /   / __ \/ __ '/ / 
 / /_/ / /_/ / /_/ / ,< / /___/ /_/ / /_/ / /  
/_.___/\____/\____/_/|_/_____/\____/\__,_/_/   `

	return "\n" + style.Render(ascii) + "\n"
}
