package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/tfcore/engine"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show backends, flags, platform and memory",
		Args:  cobra.NoArgs,
		RunE:  InfoHandler,
	}
}

// InfoHandler prints the engine state.
func InfoHandler(cmd *cobra.Command, _ []string) error {
	if err := engine.Ready(cmd.Context()); err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	name, platform := engine.HostPlatform()
	fmt.Fprintf(w, "Platform: %s (%s, %d cores)\n", name, platform.CPUBrand, platform.LogicalCores)
	if len(platform.Features) > 0 {
		fmt.Fprintf(w, "Features: %s\n", strings.Join(platform.Features, " "))
	}
	fmt.Fprintln(w)

	active := engine.BackendName()
	var backends [][]string
	for _, b := range engine.Backends() {
		mark := ""
		if b == active {
			mark = "*"
		}
		backends = append(backends, []string{b, mark})
	}
	renderTable(w, []string{"BACKEND", "ACTIVE"}, backends)
	fmt.Fprintln(w)

	flags := engine.Flags()
	names := make([]string, 0, len(flags))
	for n := range flags {
		names = append(names, n)
	}
	sort.Strings(names)
	var rows [][]string
	for _, n := range names {
		rows = append(rows, []string{n, fmt.Sprint(flags[n])})
	}
	renderTable(w, []string{"FLAG", "VALUE"}, rows)
	fmt.Fprintln(w)

	mem := engine.Memory()
	renderTable(w, []string{"TENSORS", "BUFFERS", "BYTES", "BACKEND BYTES"}, [][]string{{
		fmt.Sprint(mem.NumTensors),
		fmt.Sprint(mem.NumDataBuffers),
		fmt.Sprint(mem.NumBytes),
		fmt.Sprint(mem.NumBytesInBackend),
	}})
	return nil
}

func renderTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
