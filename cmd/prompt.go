package cmd

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nextlevelbuilder/hedgewatch/internal/catalog"
	"github.com/nextlevelbuilder/hedgewatch/internal/config"
)

// otherSymbol is the select value that switches to free-text entry.
const otherSymbol = "__other__"

// filterThreshold: enable type-to-filter only when there are more than this many options.
const filterThreshold = 5

// runForm runs the groups as one form with help hints visible at the bottom.
func runForm(groups ...*huh.Group) error {
	return huh.NewForm(groups...).WithShowHelp(true).Run()
}

// symbolOptions lists the catalog symbols followed by an "Other..." entry.
func symbolOptions(cat *catalog.Catalog) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(cat.Symbols)+1)
	for _, s := range cat.Symbols {
		opts = append(opts, huh.NewOption(s, s))
	}
	return append(opts, huh.NewOption("Other...", otherSymbol))
}

// analystOptions lists the catalog analysts as "Name - description",
// with the preselected IDs already ticked.
func analystOptions(cat *catalog.Catalog, preselected []string) []huh.Option[string] {
	pre := make(map[string]bool, len(preselected))
	for _, id := range preselected {
		pre[config.NormalizeAgentID(id)] = true
	}
	opts := make([]huh.Option[string], 0, len(cat.Analysts))
	for _, a := range cat.Analysts {
		label := a.Name
		if a.Description != "" {
			label += " - " + a.Description
		}
		opts = append(opts, huh.NewOption(label, a.ID).Selected(pre[a.ID]))
	}
	return opts
}

// validateSymbol accepts anything NormalizeSymbol can canonicalise.
func validateSymbol(s string) error {
	if config.NormalizeSymbol(s) == "" {
		return errors.New("enter a base asset such as AVAX")
	}
	return nil
}

func validateAnalysts(ids []string) error {
	if len(ids) == 0 {
		return errors.New("select at least one analyst")
	}
	return nil
}

// promptSymbol picks a catalog symbol, falling through to a text input
// when "Other..." is chosen.
func promptSymbol(cat *catalog.Catalog) (string, error) {
	var choice, custom string

	sel := huh.NewSelect[string]().
		Title("Symbol to analyze").
		Options(symbolOptions(cat)...).
		Value(&choice)
	if len(cat.Symbols) > filterThreshold {
		sel = sel.Filtering(true)
	}

	other := huh.NewGroup(
		huh.NewInput().
			Title("Symbol").
			Description("Base asset, e.g. AVAX").
			Value(&custom).
			Validate(validateSymbol),
	).WithHideFunc(func() bool { return choice != otherSymbol })

	if err := runForm(huh.NewGroup(sel), other); err != nil {
		return "", err
	}
	if choice == otherSymbol {
		return custom, nil
	}
	return choice, nil
}

// promptAgents asks which analysts to run, starting from the configured defaults.
func promptAgents(cat *catalog.Catalog, preselected []string) ([]string, error) {
	var agents []string
	opts := analystOptions(cat, preselected)

	ms := huh.NewMultiSelect[string]().
		Title("Analysts").
		Description("Space to toggle, Enter to confirm").
		Options(opts...).
		Value(&agents).
		Validate(validateAnalysts)
	if len(opts) > filterThreshold {
		ms = ms.Filtering(true)
	}

	if err := runForm(huh.NewGroup(ms)); err != nil {
		return nil, err
	}
	return agents, nil
}

// promptToken reads a service bearer token with hidden input.
func promptToken(account string) (string, error) {
	var token string
	inp := huh.NewInput().
		Title("Service token").
		Description("Bearer token for " + account).
		EchoMode(huh.EchoModePassword).
		Value(&token).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("token is empty")
			}
			return nil
		})

	if err := runForm(huh.NewGroup(inp)); err != nil {
		return "", err
	}
	return strings.TrimSpace(token), nil
}
