package main

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/hotswap/reload"
)

var diffCmd = &cobra.Command{
	Use:   "diff <old-image> <new-image>",
	Short: "Print the delta and layout verdict between two images of a type",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldData, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		newData, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		return diffImages(cmd.OutOrStdout(), oldData, newData)
	},
}

// stubLinker satisfies every body reference; the CLI never runs bodies.
var stubLinker = reload.LinkerFunc(func(typeName, ref string) (reload.Body, error) {
	return func(*reload.Instance, []reload.Value) (reload.Value, error) {
		return nil, fmt.Errorf("%w: %s is not linked in this process", reload.ErrUnresolvedBody, ref)
	}, nil
})

// diffImages replays old -> new through a scratch registry so the delta
// and layout check are exactly what a live reload would compute.
func diffImages(w io.Writer, oldData, newData []byte) error {
	oldImg, err := reload.DecodeImage(oldData)
	if err != nil {
		return err
	}

	ctx := reload.NewContext(reload.WithLookupCacheSize(0))
	defer ctx.Close()
	reg, err := ctx.NewRegistry("diff", nil, reload.WithLinker(stubLinker))
	if err != nil {
		return err
	}
	rt, err := reg.AddType(oldImg.Name, oldData)
	if err != nil {
		return err
	}
	if rt == nil {
		return fmt.Errorf("%s is an annotation type and is never reloaded", oldImg.Name)
	}
	res, err := rt.LoadNewVersion(newData, reload.AcceptLayoutChange())
	if err != nil {
		return err
	}

	printDelta(w, res.Delta)
	if len(res.AcceptedViolations) == 0 {
		fmt.Fprintln(w, "\nLayout: compatible")
		return nil
	}
	fmt.Fprintln(w, "\nLayout: INCOMPATIBLE (reload needs accept-layout-change)")
	for _, v := range res.AcceptedViolations {
		fmt.Fprintf(w, "  %s\n", v)
	}
	return nil
}

func printDelta(w io.Writer, d *reload.TypeDelta) {
	fmt.Fprintln(w, d.Summary())
	if d.SuperclassChanged {
		fmt.Fprintln(w, "  superclass changed")
	}
	if d.InterfacesChanged {
		fmt.Fprintln(w, "  interfaces changed")
	}
	if d.TypeModifiersChanged {
		fmt.Fprintln(w, "  type modifiers changed")
	}
	if d.StaticInitChanged {
		fmt.Fprintln(w, "  static initializer changed")
	}
	for _, m := range d.Added {
		fmt.Fprintf(w, "+ %s\n", m)
	}
	for _, m := range d.Removed {
		fmt.Fprintf(w, "- %s\n", m)
	}

	keys := make([]reload.MemberKey, 0, len(d.Changed))
	for k := range d.Changed {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b reload.MemberKey) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.Signature, b.Signature))
	})
	for _, k := range keys {
		c := d.Changed[k]
		fmt.Fprintf(w, "~ %s (%s)\n    was %s\n", c.New, c.Kind, c.Old)
	}
}
