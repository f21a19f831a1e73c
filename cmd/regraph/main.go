// cmd/regraph/main.go
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"regraph/internal/errors"
	"regraph/internal/logging"
	"regraph/internal/object"
	"regraph/internal/regraph"
	"regraph/internal/repo"
	"regraph/internal/walk"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var logger = zap.NewNop()
var logLevel string

var rootCmd = &cobra.Command{
	Use:   "regraph",
	Short: "Regraph edits a commit and rewrites its descendants",
	Long: `Regraph edits a single commit in a content-addressed commit graph and
propagates the edit to every descendant reachable from the chosen refs,
then retargets those refs. Existing objects are never mutated.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.NewLogger(logLevel)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l.Logger
		return nil
	},
}

func openRepo() (*repo.Repo, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}
	return repo.Open(dir, logger)
}

// parseSignature parses "Name <email>" and stamps the current time, the way
// a fresh author/committer override should be dated.
func parseSignature(s string) (object.Signature, error) {
	open := strings.IndexByte(s, '<')
	if open < 0 || !strings.HasSuffix(s, ">") {
		return object.Signature{}, fmt.Errorf("invalid signature %q: expected \"Name <email>\"", s)
	}
	name := strings.TrimSpace(s[:open])
	email := strings.TrimSpace(s[open+1 : len(s)-1])
	if name == "" || email == "" {
		return object.Signature{}, fmt.Errorf("invalid signature %q: expected \"Name <email>\"", s)
	}
	return object.Signature{Name: name, Email: email, When: time.Now()}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize a new regraph repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}
			if err := repo.Initialize(dir); err != nil {
				return fmt.Errorf("initializing repository: %w", err)
			}
			fmt.Println("Initialized empty regraph repository in", dir)
			return nil
		},
	}

	var commitMessage string
	var commitParents []string
	var commitTree string
	var commitRef string
	var commitAuthor string
	var commitCommitter string
	var commitCmd = &cobra.Command{
		Use:   "commit",
		Short: "Store a new commit and advance a ref to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return fmt.Errorf("opening repository: %w", err)
			}
			defer r.Close()

			author, err := parseSignature(commitAuthor)
			if err != nil {
				return err
			}
			committer := author
			if commitCommitter != "" {
				if committer, err = parseSignature(commitCommitter); err != nil {
					return err
				}
			}

			parents := make([]object.ID, 0, len(commitParents))
			for _, p := range commitParents {
				id, err := object.ParseID(p)
				if err != nil {
					return fmt.Errorf("parsing parent: %w", err)
				}
				parents = append(parents, id)
			}

			var tree object.ID
			if commitTree != "" {
				if tree, err = object.ParseID(commitTree); err != nil {
					return fmt.Errorf("parsing tree: %w", err)
				}
			}

			id, err := r.Commit(object.CommitData{
				Parents:   parents,
				Tree:      tree,
				Message:   []byte(commitMessage),
				Author:    author,
				Committer: committer,
			}, commitRef)
			if err != nil {
				return fmt.Errorf("creating commit: %w", err)
			}
			fmt.Println(id)
			return nil
		},
	}
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "commit message")
	commitCmd.Flags().StringArrayVarP(&commitParents, "parent", "p", nil, "parent commit id (repeatable, order-significant)")
	commitCmd.Flags().StringVar(&commitTree, "tree", "", "tree object id")
	commitCmd.Flags().StringVar(&commitRef, "ref", "HEAD", "ref to advance")
	commitCmd.Flags().StringVar(&commitAuthor, "author", "", `author as "Name <email>"`)
	commitCmd.Flags().StringVar(&commitCommitter, "committer", "", `committer as "Name <email>" (defaults to author)`)
	commitCmd.MarkFlagRequired("message")
	commitCmd.MarkFlagRequired("author")

	var treeCmd = &cobra.Command{
		Use:   "tree [file]",
		Short: "Store a tree object from a file (or stdin) and print its id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if len(args) == 1 && args[0] != "-" {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return fmt.Errorf("reading tree content: %w", err)
			}

			r, err := openRepo()
			if err != nil {
				return fmt.Errorf("opening repository: %w", err)
			}
			defer r.Close()

			id, err := r.Objects.PutTree(data)
			if err != nil {
				return fmt.Errorf("storing tree: %w", err)
			}
			fmt.Println(id)
			return nil
		},
	}

	var refsCmd = &cobra.Command{
		Use:   "refs",
		Short: "List references and their targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return fmt.Errorf("opening repository: %w", err)
			}
			defer r.Close()

			all, err := r.Refs.List()
			if err != nil {
				return fmt.Errorf("listing references: %w", err)
			}
			for _, ref := range all {
				name := color.GreenString(ref.Name)
				if ref.IsRemote {
					name = color.RedString(ref.Name)
				}
				fmt.Printf("%s %s\n", ref.Target.Short(), name)
			}
			return nil
		},
	}

	var logCmd = &cobra.Command{
		Use:   "log [ref]",
		Short: "Show history reachable from a ref, parents first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refName := "HEAD"
			if len(args) == 1 {
				refName = args[0]
			}

			r, err := openRepo()
			if err != nil {
				return fmt.Errorf("opening repository: %w", err)
			}
			defer r.Close()

			target, err := r.Refs.Resolve(refName)
			if err != nil {
				return fmt.Errorf("resolving %s: %w", refName, err)
			}

			walker := walk.New(r.Objects, []object.ID{target}, nil)
			for {
				id, err := walker.Next()
				if err == walk.Done {
					return nil
				}
				if err != nil {
					return fmt.Errorf("walking history: %w", err)
				}
				commit, err := r.Objects.ReadCommit(id)
				if err != nil {
					return fmt.Errorf("reading commit: %w", err)
				}
				subject, ok := commit.Message()
				if !ok {
					subject = "(non-text message)"
				}
				subject, _, _ = strings.Cut(subject, "\n")
				fmt.Printf("%s %s\n", color.YellowString(id.Short()), subject)
			}
		},
	}

	var editAllLocal bool
	var editRefs []string
	var editClearParents bool
	var editParents []string
	var editMessage string
	var editMessageFile string
	var editTree string
	var editAuthor string
	var editCommitter string
	var editCmd = &cobra.Command{
		Use:   "edit <commit-id>",
		Short: "Edit a commit and rewrite its descendants",
		Long: `Edit one commit's fields and rebuild every descendant reachable from the
selected refs so the graph reflects the edit, then retarget those refs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := object.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("parsing commit id: %w", err)
			}

			if editAllLocal == (len(editRefs) > 0) {
				return fmt.Errorf("specify exactly one of --update-all-local-refs or --update-ref")
			}
			if editClearParents && len(editParents) > 0 {
				return fmt.Errorf("--clear-parents and --parent are mutually exclusive")
			}
			if editMessage != "" && editMessageFile != "" {
				return fmt.Errorf("--message and --message-file are mutually exclusive")
			}

			edit := regraph.NewCommitEdit()
			if editClearParents {
				edit.EditParents(nil)
			} else if len(editParents) > 0 {
				parents := make([]object.ID, 0, len(editParents))
				for _, p := range editParents {
					id, err := object.ParseID(p)
					if err != nil {
						return fmt.Errorf("parsing parent: %w", err)
					}
					parents = append(parents, id)
				}
				edit.EditParents(parents)
			}
			if editMessage != "" {
				edit.EditMessage(editMessage)
			} else if editMessageFile != "" {
				data, err := os.ReadFile(editMessageFile)
				if err != nil {
					return fmt.Errorf("reading message file: %w", err)
				}
				edit.EditMessage(string(data))
			}
			if editTree != "" {
				tree, err := object.ParseID(editTree)
				if err != nil {
					return fmt.Errorf("parsing tree: %w", err)
				}
				edit.EditTree(tree)
			}
			if editAuthor != "" {
				author, err := parseSignature(editAuthor)
				if err != nil {
					return err
				}
				edit.EditAuthor(author)
			}
			if editCommitter != "" {
				committer, err := parseSignature(editCommitter)
				if err != nil {
					return err
				}
				edit.EditCommitter(committer)
			}

			refArg := regraph.AllLocalRefs()
			if len(editRefs) > 0 {
				refArg = regraph.RefList(editRefs...)
			}

			r, err := openRepo()
			if err != nil {
				return fmt.Errorf("opening repository: %w", err)
			}
			defer r.Close()

			if err := r.Engine.Regraph(refArg, target, edit); err != nil {
				if errors.IsType(err, errors.ErrorTypeNoChange) {
					color.Yellow("No edit occurred: %v", err)
					return nil
				}
				return fmt.Errorf("regraph failed: %w", err)
			}
			color.Green("Edited %s and rewrote its descendants", target.Short())
			return nil
		},
	}
	editCmd.Flags().BoolVar(&editAllLocal, "update-all-local-refs", false, "update every non-remote ref")
	editCmd.Flags().StringArrayVar(&editRefs, "update-ref", nil, "ref to update (repeatable)")
	editCmd.Flags().BoolVar(&editClearParents, "clear-parents", false, "remove all parents of the commit")
	editCmd.Flags().StringArrayVar(&editParents, "parent", nil, "replacement parent id (repeatable, order-significant)")
	editCmd.Flags().StringVar(&editMessage, "message", "", "replacement commit message")
	editCmd.Flags().StringVar(&editMessageFile, "message-file", "", "file to source the replacement message from")
	editCmd.Flags().StringVar(&editTree, "tree", "", "replacement tree object id")
	editCmd.Flags().StringVar(&editAuthor, "author", "", `replacement author as "Name <email>" (dated now)`)
	editCmd.Flags().StringVar(&editCommitter, "committer", "", `replacement committer as "Name <email>" (dated now)`)

	var auditCmd = &cobra.Command{
		Use:   "audit <ref>",
		Short: "Show the audit log of a ref",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return fmt.Errorf("opening repository: %w", err)
			}
			defer r.Close()

			entries, err := r.Refs.Audit(args[0])
			if err != nil {
				return fmt.Errorf("reading audit log: %w", err)
			}
			for _, entry := range entries {
				fmt.Printf("%s %s -> %s %s\n",
					entry.Time.Format(time.RFC3339),
					entry.Old.Short(), entry.New.Short(), entry.Message)
			}
			return nil
		},
	}

	var watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Stream ref updates until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return fmt.Errorf("opening repository: %w", err)
			}
			defer r.Close()

			watcher, err := r.Refs.Watch()
			if err != nil {
				return fmt.Errorf("watching refs: %w", err)
			}
			defer watcher.Close()

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

			for {
				select {
				case <-sigs:
					return nil
				case err := <-watcher.Errors():
					return fmt.Errorf("watch failed: %w", err)
				case ev, ok := <-watcher.Events():
					if !ok {
						return nil
					}
					if ev.Target.IsZero() {
						fmt.Printf("%s %s\n", color.RedString("deleted"), ev.Name)
					} else {
						fmt.Printf("%s %s -> %s\n", color.GreenString("updated"), ev.Name, ev.Target.Short())
					}
				}
			}
		},
	}

	rootCmd.AddCommand(initCmd, commitCmd, treeCmd, refsCmd, logCmd, editCmd, auditCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}
