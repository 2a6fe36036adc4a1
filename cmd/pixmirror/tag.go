package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"pixmirror/pkg/store"
)

var tagSearchLang string

// tagCmd represents the tag command group
var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage custom tags on mirrored works",
}

// tagAddCmd attaches a user-defined tag to a work. Custom tags live in their
// own namespace and never collide with mirrored platform tags.
var tagAddCmd = &cobra.Command{
	Use:   "add <work-id> <tag>",
	Short: "Attach a custom tag to a mirrored work",
	Args:  cobra.ExactArgs(2),
	RunE:  runTagAdd,
}

var tagSearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Search mirrored tags by substring",
	Args:  cobra.ExactArgs(1),
	RunE:  runTagSearch,
}

func init() {
	rootCmd.AddCommand(tagCmd)
	tagCmd.AddCommand(tagAddCmd)
	tagCmd.AddCommand(tagSearchCmd)

	tagSearchCmd.Flags().StringVar(&tagSearchLang, "lang", "", "translation language (default from config)")
}

func runTagAdd(cmd *cobra.Command, args []string) error {
	workID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || workID == 0 {
		return fmt.Errorf("bad work id %q", args[0])
	}
	text := args[1]
	if text == "" {
		return fmt.Errorf("empty tag")
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Storage.DatabasePath, log)
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := st.Begin(context.Background(), store.ReadWrite)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.AddCustomTag(workID, text); err != nil {
		return err
	}
	if err := sess.Commit(); err != nil {
		return err
	}

	fmt.Printf("tagged work %d with %q\n", workID, text)
	return nil
}

func runTagSearch(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	lang := tagSearchLang
	if lang == "" {
		lang = cfg.Pixiv.Language
	}

	st, err := store.Open(cfg.Storage.DatabasePath, log)
	if err != nil {
		return err
	}
	defer st.Close()

	items, err := st.TagsLike(context.Background(), args[0], lang)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no matching tags")
		return nil
	}
	for _, t := range items {
		if t.Translation != "" {
			fmt.Printf("%s\t(%s)\n", t.Name, t.Translation)
		} else {
			fmt.Println(t.Name)
		}
	}
	return nil
}
