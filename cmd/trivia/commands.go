package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pavelanni/trivia/internal/model"
	"github.com/pavelanni/trivia/internal/parser"
)

func topicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List, add, remove and export topics",
	}
	cmd.AddCommand(topicsListCmd(), topicsAddCmd(), topicsRemoveCmd(), topicsExportCmd())
	return cmd
}

func topicsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the topics of one collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			mode, ok := model.ParseMode(v.GetString("mode"))
			if !ok {
				return fmt.Errorf("unknown mode %q (app, saved, community)", v.GetString("mode"))
			}

			a, err := openApp(v)
			if err != nil {
				return err
			}
			defer a.Close()

			if mode == model.ModeCommunity {
				if err := a.refreshCommunity(cmd.Context()); err != nil {
					return fmt.Errorf("refresh community topics: %w", err)
				}
			}
			return printTopics(cmd.Context(), cmd.OutOrStdout(), a, mode)
		},
	}
	cmd.Flags().StringP("mode", "m", "app", "Collection to list (app, saved, community)")
	addCommonFlags(cmd.Flags())
	return cmd
}

func printTopics(ctx context.Context, out io.Writer, a *app, mode model.Mode) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, e := range a.repo.List(mode) {
		label := a.catalog.Tp(ctx, "QuestionsCount", e.Quiz.QuestionCount())
		if !e.Loaded() {
			label = a.catalog.T(ctx, "NotLoaded")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i, e.Name, label)
	}
	return tw.Flush()
}

func topicsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add NAME [URL|CONTENT|-]",
		Short: "Save a topic from a URL, inline content, a file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)

			var input string
			switch {
			case v.GetString("file") != "":
				data, err := os.ReadFile(v.GetString("file"))
				if err != nil {
					return fmt.Errorf("read topic file: %w", err)
				}
				input = string(data)
			case len(args) == 2 && args[1] != "-":
				input = args[1]
			default:
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				input = string(data)
			}

			a, err := openApp(v)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.repo.SaveFromInput(cmd.Context(), args[0], input); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.catalog.Td(cmd.Context(), "TopicSaved", map[string]any{"Name": args[0]}))
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "Read topic content from this file")
	addCommonFlags(cmd.Flags())
	return cmd
}

func topicsRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove [NAME...]",
		Short: "Remove saved topics by name or position",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)

			a, err := openApp(v)
			if err != nil {
				return err
			}
			defer a.Close()

			before := len(a.repo.List(model.ModeSaved))
			if err := a.repo.RemoveSavedAt(v.GetIntSlice("index")...); err != nil {
				return err
			}
			if err := a.repo.RemoveSaved(args...); err != nil {
				return err
			}
			deleted := before - len(a.repo.List(model.ModeSaved))
			fmt.Fprintln(cmd.OutOrStdout(), a.catalog.Tp(cmd.Context(), "TopicsDeleted", deleted))
			return nil
		},
	}
	cmd.Flags().IntSliceP("index", "i", nil, "Positions of saved topics to remove (repeatable)")
	addCommonFlags(cmd.Flags())
	return cmd
}

func topicsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export INDEX...",
		Short: "Print topics as shareable JSON payloads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			mode, ok := model.ParseMode(v.GetString("mode"))
			if !ok {
				return fmt.Errorf("unknown mode %q (app, saved, community)", v.GetString("mode"))
			}
			indices := make([]int, 0, len(args))
			for _, arg := range args {
				i, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid index %q", arg)
				}
				indices = append(indices, i)
			}

			a, err := openApp(v)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if mode == model.ModeSaved {
				exports, err := a.repo.ExportSaved(indices...)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(exports)
			}

			if mode == model.ModeCommunity {
				if err := a.refreshCommunity(cmd.Context()); err != nil {
					return fmt.Errorf("refresh community topics: %w", err)
				}
			}
			for _, i := range indices {
				if mode == model.ModeCommunity {
					if _, err := a.repo.ResolveCommunity(cmd.Context(), i); err != nil {
						return err
					}
				}
				payload, err := a.repo.Export(mode, i)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, payload)
			}
			return nil
		},
	}
	cmd.Flags().StringP("mode", "m", "saved", "Collection to export from (app, saved, community)")
	addCommonFlags(cmd.Flags())
	return cmd
}

func communityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "community",
		Short: "Browse community topics",
	}
	cmd.AddCommand(communityListCmd(), communityShowCmd())
	return cmd
}

func communityListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch the community manifest and list its topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)

			a, err := openApp(v)
			if err != nil {
				return err
			}
			defer a.Close()

			if u, at, ok, err := a.db.LastCommunityRefresh(); err == nil && ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "previous refresh: %s from %s\n", at.Local().Format("2006-01-02 15:04"), u)
			}
			if err := a.refreshCommunity(cmd.Context()); err != nil {
				return fmt.Errorf("refresh community topics: %w", err)
			}
			if limit := v.GetInt("prefetch"); limit > 0 {
				if _, err := a.repo.PrefetchCommunity(cmd.Context(), limit); err != nil {
					return err
				}
			}
			return printTopics(cmd.Context(), cmd.OutOrStdout(), a, model.ModeCommunity)
		},
	}
	cmd.Flags().Int("prefetch", 0, "Download every topic with this many parallel fetches to show question counts")
	addCommonFlags(cmd.Flags())
	return cmd
}

func communityShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show INDEX",
		Short: "Download one community topic and print it in text format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}

			a, err := openApp(v)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.refreshCommunity(cmd.Context()); err != nil {
				return fmt.Errorf("refresh community topics: %w", err)
			}
			quiz, err := a.repo.ResolveCommunity(cmd.Context(), index)
			if err != nil {
				return err
			}
			if v.GetBool("save") {
				e, err := a.repo.Topic(model.ModeCommunity, index)
				if err != nil {
					return err
				}
				if err := a.repo.Save(model.TopicEntry{Name: e.Name, Quiz: quiz}); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), a.catalog.Td(cmd.Context(), "TopicSaved", map[string]any{"Name": e.Name}))
			}
			fmt.Fprint(cmd.OutOrStdout(), parser.Serialize(quiz))
			return nil
		},
	}
	cmd.Flags().Bool("save", false, "Also save the topic to the saved collection")
	addCommonFlags(cmd.Flags())
	return cmd
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [FILE|-]",
		Short: "Validate topic content and convert it between formats",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)

			var data []byte
			var err error
			if len(args) == 0 || args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			quiz, err := parser.Decode(string(data))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch v.GetString("format") {
			case "json":
				payload, err := parser.SerializeStructured(quiz)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, payload)
			case "text":
				fmt.Fprint(out, parser.Serialize(quiz))
			default:
				return fmt.Errorf("unknown format %q (text, json)", v.GetString("format"))
			}
			return nil
		},
	}
	cmd.Flags().String("format", "json", "Output format (text, json)")
	addLogFlags(cmd.Flags())
	return cmd
}
