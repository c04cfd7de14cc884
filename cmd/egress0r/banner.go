package main

import (
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"

	"github.com/cyllective/egress0r/internal/pkg/version"
)

// printBanner 启动横幅，渲染失败时退化为单行文本
func printBanner() {
	err := pterm.DefaultBigText.
		WithLetters(putils.LettersFromStringWithStyle("egress0r", pterm.NewStyle(pterm.FgRed))).
		Render()
	if err != nil {
		pterm.FgRed.Println("egress0r")
	}
	pterm.Println(pterm.Gray("egress filtering checks v" + version.GetVersion()))
	pterm.Println()
}
