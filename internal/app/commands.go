package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"storyreel/internal/cli/scheme/colours"
	"storyreel/internal/config"
	"storyreel/internal/logging"
)

// CLI owns the command tree. The Service is built once flags are parsed.
type CLI struct {
	ctx        context.Context
	configPath string
	logLevel   string
	cfg        *config.Config
	svc        *Service
}

// NewCLI creates the command tree bound to ctx. Cancelling ctx stops
// in-flight work, image downloads included.
func NewCLI(ctx context.Context) *CLI {
	return &CLI{ctx: ctx}
}

func (c *CLI) Config() *config.Config { return c.cfg }

func (c *CLI) Service() *Service { return c.svc }

func (c *CLI) Context() context.Context { return c.ctx }

// RootCommand builds the command tree. Extra commands that need the
// Service can be attached before Execute.
func (c *CLI) RootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "storyreel",
		Short: "Turn books into illustrated, narrated stories",
		Long: `storyreel imports books, extracts their characters and key scenes,
and turns them into illustrations and narration.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default storyreel.yaml)")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(
		c.importCommand(),
		c.analyzeCommand(),
		c.visualizeCommand(),
		c.portraitCommand(),
		c.narrateCommand(),
		c.askCommand(),
		c.libraryCommand(),
		c.gutenbergCommand(),
	)
	return rootCmd
}

func (c *CLI) setup(cmd *cobra.Command, args []string) error {
	if c.svc != nil {
		return nil
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return err
	}

	svc, err := Build(c.ctx, cfg)
	if err != nil {
		return err
	}
	c.cfg, c.svc = cfg, svc
	return nil
}

func (c *CLI) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Add a book file to the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.svc.Import(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			colours.Success.Fprint(w, "Imported ")
			printBook(w, b.Title, b.Author, b.ID)
			return nil
		},
	}
}

func (c *CLI) analyzeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <book-id>",
		Short: "Extract characters, themes and scenes from a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.svc.Analyze(c.ctx, args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			colours.Title.Fprintln(w, m.Title)
			fmt.Fprintln(w, m.Summary)
			fmt.Fprintln(w)
			colours.Info.Fprintln(w, "Characters:")
			for i, e := range m.Entities {
				fmt.Fprintf(w, "  %d. ", i+1)
				colours.Author.Fprint(w, e.Name)
				fmt.Fprintf(w, " (%s)", e.Role)
				if e.Description != "" {
					fmt.Fprintf(w, ": %s", e.Description)
				}
				fmt.Fprintln(w)
			}
			colours.Info.Fprintln(w, "Scenes:")
			for i, sc := range m.Scenes {
				fmt.Fprintf(w, "  %d. %s\n", i+1, sc)
			}
			return nil
		},
	}
}

func (c *CLI) visualizeCommand() *cobra.Command {
	var style string
	var seed int

	cmd := &cobra.Command{
		Use:   "visualize <book-id>",
		Short: "Generate the title, scene and character images of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.svc.SemanticMap(c.ctx, args[0])
			if err != nil {
				return err
			}
			want := len(c.svc.Images.Plan(m, "", style, 0))

			started := time.Now()
			images, err := c.svc.Visualize(c.ctx, args[0], style, seed)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, img := range images {
				colours.Path.Fprintln(w, img)
			}
			colours.Outcome(len(images), want).Fprintf(w, "Generated %d of %d images in %s\n",
				len(images), want, time.Since(started).Round(time.Second))
			return c.ctx.Err()
		},
	}

	cmd.Flags().StringVarP(&style, "style", "s", "", "art style (default from config)")
	cmd.Flags().IntVar(&seed, "seed", RandomSeed, "base seed, random when negative")
	return cmd
}

func (c *CLI) portraitCommand() *cobra.Command {
	var role, style string
	var seed int

	cmd := &cobra.Command{
		Use:   "portrait <name>",
		Short: "Generate a character portrait",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := c.svc.Portrait(c.ctx, args[0], role, style, seed)
			if err != nil {
				return err
			}
			colours.Path.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&role, "role", "r", "Character", "role of the character")
	cmd.Flags().StringVarP(&style, "style", "s", "", "art style (default from config)")
	cmd.Flags().IntVar(&seed, "seed", RandomSeed, "seed, random when negative")
	return cmd
}

func (c *CLI) narrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "narrate <book-id>",
		Short: "Render the opening of a book to audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := c.svc.Narrate(c.ctx, args[0])
			if err != nil {
				return err
			}
			colours.Path.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func (c *CLI) askCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <book-id> [question]",
		Short: "Ask a question about a book, or list suggested questions",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 2 {
				answer, err := c.svc.Ask(c.ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(w, answer)
				return nil
			}

			questions, err := c.svc.SuggestQuestions(c.ctx, args[0])
			if err != nil {
				return err
			}
			if len(questions) == 0 {
				colours.Info.Fprintln(w, "No suggestions available.")
				return nil
			}
			for _, q := range questions {
				fmt.Fprintf(w, "- %s\n", q)
			}
			return nil
		},
	}
}

func (c *CLI) libraryCommand() *cobra.Command {
	libraryCmd := &cobra.Command{
		Use:   "library",
		Short: "Manage imported books",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List imported books, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			books, err := c.svc.Store.List()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(books) == 0 {
				colours.Warning.Fprintln(w, "The library is empty.")
				return nil
			}
			for i, b := range books {
				fmt.Fprintf(w, "  %d. ", i+1)
				printBook(w, b.Title, b.Author, b.ID)
				if len(b.Images) > 0 || b.Audio != "" {
					fmt.Fprintf(w, "     images: %d, audio: %t\n", len(b.Images), b.Audio != "")
				}
			}
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <book-id>",
		Short: "Remove a book and its file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.svc.Store.Delete(args[0]); err != nil {
				return err
			}
			colours.Success.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}

	libraryCmd.AddCommand(listCmd, deleteCmd)
	return libraryCmd
}

func (c *CLI) gutenbergCommand() *cobra.Command {
	gutenbergCmd := &cobra.Command{
		Use:   "gutenberg",
		Short: "Find and import books from Project Gutenberg",
	}

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the Gutenberg catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := c.svc.Catalog.Search(c.ctx, args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(results) == 0 {
				colours.Warning.Fprintln(w, "No books found.")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(w, "  %d. ", i+1)
				printBook(w, r.Name, r.Author, r.ID)
			}
			return nil
		},
	}

	var pick int
	fetchCmd := &cobra.Command{
		Use:   "fetch <query>",
		Short: "Download a search result into the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := c.svc.Catalog.Search(c.ctx, args[0])
			if err != nil {
				return err
			}
			if pick < 1 || pick > len(results) {
				return fmt.Errorf("no result number %d for %q (%d found)", pick, args[0], len(results))
			}

			b, err := c.svc.FetchFromCatalog(c.ctx, results[pick-1])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			colours.Success.Fprint(w, "Imported ")
			printBook(w, b.Title, b.Author, b.ID)
			return nil
		},
	}
	fetchCmd.Flags().IntVarP(&pick, "pick", "p", 1, "which search result to download")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := c.svc.Catalog.CacheInfo()
			w := cmd.OutOrStdout()
			if !info.Exists {
				colours.Warning.Fprintln(w, "Cache does not exist")
				return nil
			}
			colours.Success.Fprintln(w, "Cache exists")
			colours.Info.Fprintf(w, "Location: %s\n", info.Path)
			colours.Info.Fprintf(w, "Size: %d bytes, %d queries\n", info.Size, info.Queries)
			colours.Info.Fprintf(w, "Last modified: %s (max age %s)\n",
				info.LastModified.Format("2006-01-02 15:04:05"), info.MaxAge)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the search cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.svc.Catalog.ClearCache(); err != nil {
				return err
			}
			colours.Success.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		},
	}

	gutenbergCmd.AddCommand(searchCmd, fetchCmd, statusCmd, clearCmd)
	return gutenbergCmd
}

func printBook(w io.Writer, title, author, id string) {
	colours.Title.Fprint(w, title)
	fmt.Fprint(w, " by ")
	colours.Author.Fprint(w, author)
	fmt.Fprint(w, " ")
	colours.ID.Fprintln(w, "["+id+"]")
}
