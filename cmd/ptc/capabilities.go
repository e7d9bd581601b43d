// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/ptcrun/ptc/internal/capabilities/builtin"
	"github.com/ptcrun/ptc/internal/capability"
	"github.com/ptcrun/ptc/internal/issue"
)

type capabilitiesOptions struct {
	toolsDir string
	schema   bool
}

func newCapabilitiesCommand(root *rootOptions) *cobra.Command {
	opts := &capabilitiesOptions{}

	cmd := &cobra.Command{
		Use:   "capabilities [namespace|key]",
		Short: "List the capabilities scripts can call",
		Long: `List the capabilities scripts can call.

Built-in capabilities are listed together with the fallback scripts found
under the tools directory. An argument narrows the listing to one
namespace or key.

With --schema, the JSON Schema of built-in capability inputs is printed
instead: for the given key, or for every built-in when no key is given.`,
		Example: `  ptc capabilities
  ptc capabilities git
  ptc capabilities --schema fs.read`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ""
			if len(args) == 1 {
				filter = args[0]
			}
			if opts.schema {
				return printSchemas(cmd, root, filter)
			}
			return listCapabilities(cmd, root, opts, filter)
		},
	}

	cmd.Flags().StringVar(&opts.toolsDir, "tools-dir", "", "directory of fallback capability scripts (overrides tools_dir)")
	cmd.Flags().BoolVar(&opts.schema, "schema", false, "print the JSON Schema of built-in capability inputs")

	return cmd
}

func listCapabilities(cmd *cobra.Command, root *rootOptions, opts *capabilitiesOptions, filter string) error {
	cfg, logger, err := loadConfig(cmd, root)
	if err != nil {
		return err
	}
	factory := newEngineFactory(cfg, opts.toolsDir, logger)
	registry := factory.registry()

	keys, err := registry.Available()
	if err != nil {
		err = issue.NewErrorContext().
			WithOperation("list capabilities").
			WithResource(registry.ToolsDir()).
			WithSuggestion("Check that the tools directory is readable").
			WithIssue(issue.ToolsDirUnreadableId).
			Wrap(err).
			Build()
		renderIssueOf(cmd.ErrOrStderr(), err)
		return err
	}
	keys = filterKeys(keys, filter)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, TitleStyle.Render(fmt.Sprintf("Available capabilities (%d)", len(keys))))
	fmt.Fprintln(out)

	width := 0
	for _, k := range keys {
		width = max(width, len(k.String()))
	}
	for _, k := range keys {
		name := CmdStyle.Render(k.String() + strings.Repeat(" ", width-len(k.String())))
		if d, ok := factory.catalog.Describe(k); ok {
			fmt.Fprintf(out, "  %s %s  %s\n", kindNativeStyle.Render(string(capability.BindingNative)), name, SubtitleStyle.Render(d.Summary))
			continue
		}
		fmt.Fprintf(out, "  %s %s  %s\n", kindProcessStyle.Render(string(capability.BindingProcess)), name, VerboseStyle.Render(registry.ScriptPath(k)))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, SubtitleStyle.Render("Fallback scripts: ")+VerboseStyle.Render(registry.ToolsDir()))
	return nil
}

// filterKeys keeps the keys matching a namespace or a full key.
func filterKeys(keys []capability.Key, filter string) []capability.Key {
	if filter == "" {
		return keys
	}
	var out []capability.Key
	for _, k := range keys {
		if k.Namespace == filter || k.String() == filter {
			out = append(out, k)
		}
	}
	return out
}

func printSchemas(cmd *cobra.Command, root *rootOptions, filter string) error {
	catalog := builtin.Catalog()

	var doc any
	if filter == "" {
		schemas := make(map[string]*jsonschema.Schema)
		for _, d := range catalog.Descriptors() {
			if s := builtin.InputSchema(d); s != nil {
				schemas[d.Key.String()] = s
			}
		}
		doc = schemas
	} else {
		key, err := capability.ParseKey(filter)
		if err != nil {
			return issue.NewErrorContext().
				WithOperation("describe capability").
				WithResource(filter).
				WithSuggestion("Pass a key of the form namespace.method, e.g. fs.read").
				Wrap(err).
				Build()
		}
		d, ok := catalog.Describe(key)
		if !ok {
			err := issue.NewErrorContext().
				WithOperation("describe capability").
				WithResource(filter).
				WithSuggestion("Only built-in capabilities have schemas; run 'ptc capabilities' to list them").
				WithIssue(issue.CapabilityNotFoundId).
				Wrap(capability.ErrNotFound).
				Build()
			if root.verbose {
				renderIssueOf(cmd.ErrOrStderr(), err)
			}
			return err
		}
		s := builtin.InputSchema(d)
		if s == nil {
			s = &jsonschema.Schema{Title: d.Key.String(), Description: d.Summary}
		}
		doc = s
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
