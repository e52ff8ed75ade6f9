package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/hotswap/reload"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <image>",
	Short: "Print the header and members of a binary type image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return inspectImage(cmd.OutOrStdout(), data)
	},
}

func inspectImage(w io.Writer, data []byte) error {
	h, err := reload.ReadImageHeader(data)
	if err != nil {
		return err
	}
	img, err := reload.DecodeImage(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Image:      %s v%d flags=%d payload=%d bytes\n", h.Magic, h.Version, h.Flags, h.PayloadLength)
	fmt.Fprintf(w, "Checksum:   %016x\n", h.Checksum)
	fmt.Fprintf(w, "Digest:     %016x\n", reload.ImageDigest(data))
	fmt.Fprintf(w, "Type:       %s %s\n", img.Modifiers, img.Name)
	if img.Superclass != "" {
		fmt.Fprintf(w, "Extends:    %s\n", img.Superclass)
	}
	if len(img.Interfaces) > 0 {
		fmt.Fprintf(w, "Implements: %s\n", strings.Join(img.Interfaces, ", "))
	}
	if img.StaticInit != "" {
		fmt.Fprintf(w, "Static init: %s\n", img.StaticInit)
	}

	members := img.Members(0)
	for _, kind := range []reload.Kind{reload.KindField, reload.KindConstructor, reload.KindMethod} {
		all := members.All(kind)
		if len(all) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%ss:\n", kind)
		for _, d := range all {
			line := "  " + d.String()
			if d.Impl() != "" {
				line += " -> " + d.Impl()
			}
			if anns := d.Annotations(); len(anns) > 0 {
				line += " @" + strings.Join(anns, " @")
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}
