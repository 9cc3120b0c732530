package menu

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	runewidth "github.com/mattn/go-runewidth"
)

const defaultHistoryLimit = 20

func (m *Menu) promptUserSelection(options []MenuOption) (int, error) {
	items, indexes := formatMenuItems(options)

	prompt := promptui.Select{
		Label:             "Please select an operation",
		Items:             items,
		Size:              10,
		HideHelp:          false,
		StartInSearchMode: false,
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}:",
			Active:   "▶ {{ . | cyan }}",
			Inactive: "  {{ . }}",
			Selected: "✅ {{ . | green }}",
			Help:     "{{ \"Navigate:\" | faint }} {{ .NextKey }} {{ .PrevKey }} {{ .PageDownKey }} {{ .PageUpKey }} {{ \"|\" | faint }} {{ \"Exit:\" | faint }} Ctrl + C",
		},
	}

	index, _, err := prompt.Run()
	if err != nil {
		return -1, err
	}

	if index >= 0 && index < len(indexes) {
		return indexes[index], nil
	}

	return -1, errors.New("invalid selection")
}

func formatMenuItems(options []MenuOption) ([]string, []int) {
	entries := buildMenuEntries(options)
	if len(entries) == 0 {
		return nil, nil
	}

	maxPrefixWidth := 0
	maxNumberWidth := 0
	for _, entry := range entries {
		if width := runewidth.StringWidth(entry.prefix); width > maxPrefixWidth {
			maxPrefixWidth = width
		}
		if len(entry.numberPart) > maxNumberWidth {
			maxNumberWidth = len(entry.numberPart)
		}
	}

	items := make([]string, 0, len(entries))
	indexes := make([]int, 0, len(entries))

	for _, entry := range entries {
		prefix := entry.prefix + strings.Repeat(" ", maxPrefixWidth-runewidth.StringWidth(entry.prefix))

		numberColumn := ""
		if entry.numberPart != "" {
			numberColumn = fmt.Sprintf("%*s. ", maxNumberWidth, entry.numberPart)
		} else if maxNumberWidth > 0 {
			numberColumn = strings.Repeat(" ", maxNumberWidth+2)
		}

		text := entry.textPart
		if entry.description != "" {
			text += "  " + entry.description
		}
		items = append(items, fmt.Sprintf("%s %s%s", prefix, numberColumn, text))
		indexes = append(indexes, entry.originalIndex)
	}

	return items, indexes
}

type menuEntry struct {
	prefix        string
	numberPart    string
	textPart      string
	description   string
	originalIndex int
}

var numberPattern = regexp.MustCompile(`^(\d+)\.\s*(.*)$`)

func buildMenuEntries(options []MenuOption) []menuEntry {
	entries := make([]menuEntry, 0, len(options))

	for idx, option := range options {
		if !option.Enabled {
			continue
		}

		numberPart := ""
		textPart := option.Label
		if matches := numberPattern.FindStringSubmatch(option.Label); len(matches) == 3 {
			numberPart = matches[1]
			textPart = matches[2]
		}

		description := ""
		if option.Description != "" {
			description = "(" + option.Description + ")"
		}

		entries = append(entries, menuEntry{
			prefix:        statusPrefix(option.Color),
			numberPart:    numberPart,
			textPart:      textPart,
			description:   description,
			originalIndex: idx,
		})
	}

	return entries
}

func statusPrefix(color string) string {
	switch color {
	case "red":
		return "🔴"
	case "green":
		return "🟢"
	case "yellow":
		return "🟡"
	case "cyan":
		return "🔵"
	default:
		return "⚪"
	}
}

func (m *Menu) promptPath(label, def string, validate promptui.ValidateFunc) (string, error) {
	prompt := promptui.Prompt{
		Label:     label,
		Default:   def,
		AllowEdit: true,
		Validate:  validate,
	}

	value, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func (m *Menu) promptLimit() (int, error) {
	prompt := promptui.Prompt{
		Label:   "Number of entries",
		Default: strconv.Itoa(defaultHistoryLimit),
		Validate: func(input string) error {
			n, err := strconv.Atoi(strings.TrimSpace(input))
			if err != nil || n <= 0 {
				return errors.New("please enter a positive number")
			}
			return nil
		},
	}

	value, err := prompt.Run()
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(value))
}

func (m *Menu) waitForUserInput(message string) {
	prompt := promptui.Prompt{Label: message}
	_, _ = prompt.Run()
}

func validateFile(input string) error {
	info, err := os.Stat(strings.TrimSpace(input))
	if err != nil {
		return errors.New("file does not exist")
	}
	if info.IsDir() {
		return errors.New("path is a directory")
	}
	return nil
}

func validateDir(input string) error {
	info, err := os.Stat(strings.TrimSpace(input))
	if err != nil {
		return errors.New("directory does not exist")
	}
	if !info.IsDir() {
		return errors.New("path is not a directory")
	}
	return nil
}

// validateDownloadDir accepts a missing directory, it is created on download.
func validateDownloadDir(input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return errors.New("please enter a directory")
	}
	if info, err := os.Stat(input); err == nil && !info.IsDir() {
		return errors.New("path is not a directory")
	}
	return nil
}
