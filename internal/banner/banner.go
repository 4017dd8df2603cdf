package banner

import (
	"github.com/charmbracelet/lipgloss"
)

// GetString renders the startup banner.
func GetString() string {
	style := lipgloss.DefaultRenderer().NewStyle().
		Foreground(lipgloss.Color("#7D56F4")).
		Bold(true)

	ascii := `
   _____ __  _______     ______                           __
  / ___//  |/  / __ )   /_  __/__  ____ ___  ____  ___  _____/ /_
  \__ \/ /|_/ / __  |    / / / _ \/ __ '__ \/ __ \/ _ \/ ___/ __/
 ___/ / /  / / /_/ /    / / /  __/ / / / / / /_/ /  __(__  ) /_
/____/_/  /_/_____/    /_/  \___/_/ /_/ /_/ .___/\___/____/\__/
                                         /_/                    `

	return "\n" + style.Render(ascii) + "\n"
}
