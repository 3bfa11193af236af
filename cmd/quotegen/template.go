package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aspcranes/quotegen/internal/template"
)

var (
	templateScope       string
	templateAll         bool
	templateName        string
	templateDescription string
	templateTheme       string
	templateDefault     bool
	templateFormat      string
	templateOutput      string
	templateAuthor      string
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Template management commands",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	RunE:  runTemplateList,
}

var templateShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show template details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateShow,
}

var templateCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a template with the standard element layout",
	RunE:  runTemplateCreate,
}

var templateImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a template from a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateImport,
}

var templateExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a template as JSON or YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateExport,
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Deactivate a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateDelete,
}

var templateSetDefaultCmd = &cobra.Command{
	Use:   "set-default <id>",
	Short: "Make a template the default of its scope",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateSetDefault,
}

var templateVersionsCmd = &cobra.Command{
	Use:   "versions <id> [version]",
	Short: "List template revisions, or show one revision",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runTemplateVersions,
}

var templateSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the built-in starter templates",
	RunE:  runTemplateSeed,
}

func init() {
	templateListCmd.Flags().StringVar(&templateScope, "scope", "", "Only list templates of this scope")
	templateListCmd.Flags().BoolVar(&templateAll, "all", false, "Include inactive templates")

	templateCreateCmd.Flags().StringVar(&templateName, "name", "", "Template name (required)")
	templateCreateCmd.Flags().StringVar(&templateDescription, "description", "", "Template description")
	templateCreateCmd.Flags().StringVar(&templateTheme, "theme", string(template.ThemeModern), "Theme: MODERN, PROFESSIONAL, CLASSIC or MINIMAL")
	templateCreateCmd.Flags().StringVar(&templateScope, "scope", "", "Template scope (default: quotation)")
	templateCreateCmd.Flags().BoolVar(&templateDefault, "default", false, "Make the template the default of its scope")
	templateCreateCmd.MarkFlagRequired("name")

	templateImportCmd.Flags().BoolVar(&templateDefault, "default", false, "Make the template the default of its scope")
	templateImportCmd.Flags().StringVar(&templateAuthor, "author", "", "Recorded as the template creator")

	templateExportCmd.Flags().StringVar(&templateFormat, "format", "", "Output format: json or yaml (default: from --output, else json)")
	templateExportCmd.Flags().StringVarP(&templateOutput, "output", "o", "", "Output file (default: stdout)")

	templateCmd.AddCommand(
		templateListCmd,
		templateShowCmd,
		templateCreateCmd,
		templateImportCmd,
		templateExportCmd,
		templateDeleteCmd,
		templateSetDefaultCmd,
		templateVersionsCmd,
		templateSeedCmd,
	)
	rootCmd.AddCommand(templateCmd)
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	s, err := openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	templates, err := s.Templates.List(cmd.Context(), template.ListFilter{
		Scope:           templateScope,
		IncludeInactive: templateAll,
	})
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	printTemplates(cmd.OutOrStdout(), templates)
	return nil
}

func printTemplates(out io.Writer, templates []*template.Template) {
	if len(templates) == 0 {
		fmt.Fprintln(out, "No templates found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSCOPE\tTHEME\tVERSION\tFLAGS\tUPDATED")
	for _, tmpl := range templates {
		flags := ""
		if tmpl.IsDefault {
			flags = "default"
		}
		if !tmpl.IsActive {
			flags = "inactive"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			tmpl.ID,
			tmpl.Name,
			tmpl.Scope(),
			tmpl.Theme,
			tmpl.Version,
			flags,
			tmpl.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal: %d templates\n", len(templates))
}

func runTemplateShow(cmd *cobra.Command, args []string) error {
	s, err := openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	tmpl, err := s.Templates.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}

	printTemplate(cmd.OutOrStdout(), tmpl)
	return nil
}

func printTemplate(out io.Writer, tmpl *template.Template) {
	fmt.Fprintf(out, "ID:          %s\n", tmpl.ID)
	fmt.Fprintf(out, "Name:        %s\n", tmpl.Name)
	fmt.Fprintf(out, "Description: %s\n", tmpl.Description)
	fmt.Fprintf(out, "Scope:       %s\n", tmpl.Scope())
	fmt.Fprintf(out, "Theme:       %s\n", tmpl.Theme)
	fmt.Fprintf(out, "Default:     %t\n", tmpl.IsDefault)
	fmt.Fprintf(out, "Active:      %t\n", tmpl.IsActive)
	fmt.Fprintf(out, "Version:     %d\n", tmpl.Version)
	fmt.Fprintf(out, "Created:     %s\n", tmpl.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Updated:     %s\n", tmpl.UpdatedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(out, "\nElements (%d):\n", len(tmpl.Elements))
	for i, el := range tmpl.Elements {
		state := ""
		if !el.Visible {
			state = " (hidden)"
		}
		if err := el.Err(); err != nil {
			state = fmt.Sprintf(" (malformed: %v)", err)
		}
		fmt.Fprintf(out, "  %2d. %-14s %s%s\n", i+1, el.Type, el.ID, state)
	}
}

func runTemplateCreate(cmd *cobra.Command, args []string) error {
	s, err := openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	tmpl := template.FallbackTemplate()
	tmpl.ID = ""
	tmpl.Name = templateName
	tmpl.Description = templateDescription
	tmpl.Theme = template.Theme(templateTheme)
	tmpl.Category = templateScope
	tmpl.IsDefault = templateDefault

	if err := s.Templates.Create(cmd.Context(), tmpl); err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Template created successfully\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  ID:   %s\n", tmpl.ID)
	fmt.Fprintf(cmd.OutOrStdout(), "  Name: %s\n", tmpl.Name)
	return nil
}

func runTemplateImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read template file: %w", err)
	}
	tmpl, err := template.Decode(data, template.FormatFromPath(args[0]))
	if err != nil {
		return err
	}
	if templateDefault {
		tmpl.IsDefault = true
	}
	if templateAuthor != "" {
		tmpl.CreatedBy = templateAuthor
	}

	s, err := openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Templates.Create(cmd.Context(), tmpl); err != nil {
		return fmt.Errorf("failed to import template: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Template imported: %s (%s)\n", tmpl.Name, tmpl.ID)
	return nil
}

func runTemplateExport(cmd *cobra.Command, args []string) error {
	s, err := openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	tmpl, err := s.Templates.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}

	format := templateFormat
	if format == "" {
		format = template.FormatFromPath(templateOutput)
	}
	data, err := template.Encode(tmpl, format)
	if err != nil {
		return err
	}

	if templateOutput == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(templateOutput, data, 0644); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Template exported to %s\n", templateOutput)
	return nil
}

func runTemplateDelete(cmd *cobra.Command, args []string) error {
	s, err := openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Templates.SoftDelete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Template deactivated: %s\n", args[0])
	return nil
}

func runTemplateSetDefault(cmd *cobra.Command, args []string) error {
	s, err := openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	tmpl, err := s.Templates.SetDefault(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to set default template: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Default template for %s: %s (%s)\n", tmpl.Scope(), tmpl.Name, tmpl.ID)
	return nil
}

func runTemplateVersions(cmd *cobra.Command, args []string) error {
	s, err := openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	if len(args) == 2 {
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		rev, err := s.Templates.Revision(cmd.Context(), args[0], version)
		if err != nil {
			return fmt.Errorf("failed to get revision: %w", err)
		}
		fmt.Fprintf(out, "Revision %d by %q at %s\n\n", rev.Version, rev.ChangedBy, rev.CreatedAt.Format("2006-01-02 15:04:05"))
		printTemplate(out, rev.Template)
		return nil
	}

	versions, err := s.Templates.Versions(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tCHANGED BY\tNAME\tCREATED")
	for _, rev := range versions {
		name := ""
		if rev.Template != nil {
			name = rev.Template.Name
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", rev.Version, rev.ChangedBy, name, rev.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	w.Flush()
	return nil
}

func runTemplateSeed(cmd *cobra.Command, args []string) error {
	s, err := openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	existing, err := s.Templates.List(cmd.Context(), template.ListFilter{IncludeInactive: true})
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}
	names := make(map[string]bool, len(existing))
	for _, tmpl := range existing {
		names[tmpl.Name] = true
	}

	created := 0
	for i, tmpl := range template.Builtins() {
		if names[tmpl.Name] {
			fmt.Fprintf(cmd.OutOrStdout(), "  skipped %s (exists)\n", tmpl.Name)
			continue
		}
		// The first starter becomes the default of an empty store.
		tmpl.IsDefault = i == 0 && len(existing) == 0
		tmpl.CreatedBy = "seed"
		if err := s.Templates.Create(cmd.Context(), tmpl); err != nil {
			return fmt.Errorf("failed to create %s: %w", tmpl.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  created %s (%s)\n", tmpl.Name, tmpl.ID)
		created++
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d templates\n", created)
	return nil
}
