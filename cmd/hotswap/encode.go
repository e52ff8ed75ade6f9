package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/hotswap/reload"
)

var (
	encodeOpts = struct {
		output    string
		synthetic bool
	}{}

	encodeCmd = &cobra.Command{
		Use:   "encode <type.toml>",
		Short: "Encode a TOML type source into a binary type image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			img, err := parseTypeSource(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			flags := reload.ImageFlagNone
			if encodeOpts.synthetic {
				flags = reload.ImageFlagSynthetic
			}
			out, err := reload.EncodeImageWithFlags(img, flags)
			if err != nil {
				return err
			}

			path := encodeOpts.output
			if path == "" {
				path = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".hsti"
			}
			if err := os.WriteFile(path, out, 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes, digest %016x\n", path, len(out), reload.ImageDigest(out))
			return nil
		},
	}
)

func init() {
	encodeCmd.Flags().StringVarP(&encodeOpts.output, "output", "o", "", "Output image path (default: source path with .hsti)")
	encodeCmd.Flags().BoolVar(&encodeOpts.synthetic, "synthetic", true, "Mark the image as tool-produced")
}
