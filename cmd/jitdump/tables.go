// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/kernelselector/pkg/kernels/jit"
	"github.com/gomlx/kernelselector/pkg/kernels/kernel"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

func newPlainTable(alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			}
			return s.Align(alignment)
		})
}

// summaryHeaders are the columns of summaryRows.
var summaryHeaders = []string{"Variant", "Entry point", "Index", "GWS", "LWS", "Block", "Work-items", "Priority", "Source"}

// summaryRows returns one row per kernel.
func summaryRows(kds []*kernel.KernelData) [][]string {
	rows := make([][]string, 0, len(kds))
	for _, kd := range kds {
		index := "-"
		if kd.AutoTuneIndex != kernel.AutoTuneIndexUnset {
			index = strconv.Itoa(kd.AutoTuneIndex)
		}
		gws := kd.Dispatch.GWS
		style := kd.Dispatch.CLDNNStyle
		rows = append(rows, []string{
			kd.KernelName,
			kd.EntryPoint,
			index,
			fmt.Sprintf("%v", gws),
			fmt.Sprintf("%v", kd.Dispatch.LWS),
			fmt.Sprintf("%dx%d", style.BlockWidth, style.BlockHeight),
			humanize.Comma(int64(gws[0] * gws[1] * gws[2])),
			kd.EstimatedTime.String(),
			humanize.Bytes(uint64(len(kd.Constants.Render()))),
		})
	}
	return rows
}

func summaryTable(kds []*kernel.KernelData) *lgtable.Table {
	table := newPlainTable(lipgloss.Left, lipgloss.Left, lipgloss.Right, lipgloss.Left, lipgloss.Left,
		lipgloss.Right, lipgloss.Right, lipgloss.Left, lipgloss.Right)
	table.Headers(summaryHeaders...)
	for _, row := range summaryRows(kds) {
		table.Row(row...)
	}
	return table
}

// constantRows returns the definitions of the constants, in order, with multi-line values
// shown in one line.
func constantRows(constants *jit.Constants) [][]string {
	definitions := constants.Definitions()
	rows := make([][]string, 0, len(definitions))
	for _, def := range definitions {
		rows = append(rows, []string{def.Name, singleLine(def.Value)})
	}
	return rows
}

func constantsTable(kd *kernel.KernelData) *lgtable.Table {
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Headers("Name", "Value")
	for _, row := range constantRows(kd.Constants) {
		table.Row(row...)
	}
	return table
}

// singleLine removes the line continuations of macro values.
func singleLine(value string) string {
	out := make([]rune, 0, len(value))
	for _, r := range value {
		switch r {
		case '\\':
			continue
		case '\n', '\t':
			if len(out) > 0 && out[len(out)-1] != ' ' {
				out = append(out, ' ')
			}
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
