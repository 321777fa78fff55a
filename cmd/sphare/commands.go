package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/blogsphare/sphare"
	"github.com/blogsphare/sphare/client"
	"github.com/spf13/cobra"
)

type options struct {
	server  string
	viewer  string
	timeout time.Duration
}

func (o *options) client() *client.Client {
	return &client.Client{BaseUrl: o.server, Timeout: o.timeout}
}

func (o *options) requireViewer() (sphare.Email, error) {
	viewer := sphare.NormalizeEmail(o.viewer)
	if viewer == "" {
		return "", errors.New("--as is required")
	}
	return viewer, nil
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "sphare",
		Short:         "Follow and inspect blogsphare profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("SPHARE_SERVER")
	if server == "" {
		server = "http://localhost:3000"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "server address")
	root.PersistentFlags().StringVar(&opts.viewer, "as", os.Getenv("SPHARE_EMAIL"), "email of the acting profile")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		newIntentCommand(opts, sphare.IntentFollow),
		newIntentCommand(opts, sphare.IntentUnfollow),
		newToggleCommand(opts),
		newProfileCommand(opts),
		newRelationCommand(opts, "followers", sphare.FieldFollower),
		newRelationCommand(opts, "following", sphare.FieldFollowing),
	)
	return root
}

func newIntentCommand(opts *options, intent sphare.Intent) *cobra.Command {
	return &cobra.Command{
		Use:   string(intent) + " <email>",
		Short: fmt.Sprintf("Send a %s intent for the acting profile", intent),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewer, err := opts.requireViewer()
			if err != nil {
				return err
			}
			result, err := opts.client().FollowFollowing(cmd.Context(), viewer, sphare.NormalizeEmail(args[0]), intent)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s following %s: %t (%d followers)\n",
				viewer, result.Target.Email, result.IsFollowing, len(result.Target.Follower))
			return nil
		},
	}
}

func newToggleCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <email>",
		Short: "Flip the follow state like the follow button does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewer, err := opts.requireViewer()
			if err != nil {
				return err
			}
			c := opts.client()
			target, err := c.ProfileData(cmd.Context(), sphare.NormalizeEmail(args[0]))
			if err != nil {
				return err
			}

			toggle := client.DeriveFollowToggle(viewer, target, c.Applier(viewer, target.Email))
			out := cmd.OutOrStdout()
			toggle.OnChange(func(s client.ToggleState) {
				fmt.Fprintf(out, "%s: following=%t\n", s.Phase, s.IsFollowing)
			})
			settled, err := toggle.Toggle(cmd.Context())
			if err != nil {
				return err
			}
			final := <-settled
			if final.Err != nil {
				return fmt.Errorf("toggle rolled back: %w", final.Err)
			}
			return nil
		},
	}
}

func newProfileCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "profile <email>",
		Short: "Show a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := opts.client().ProfileData(cmd.Context(), sphare.NormalizeEmail(args[0]))
			if err != nil {
				return err
			}
			printProfile(cmd.OutOrStdout(), profile)
			return nil
		},
	}
}

func newRelationCommand(opts *options, use string, field sphare.RelationField) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email>",
		Short: "List the " + use + " of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			profile, err := c.ProfileData(cmd.Context(), sphare.NormalizeEmail(args[0]))
			if err != nil {
				return err
			}

			var profiles []sphare.Profile
			if field == sphare.FieldFollower {
				profiles, err = c.FollowerProfiles(cmd.Context(), profile.Follower)
			} else {
				profiles, err = c.FollowingProfiles(cmd.Context(), profile.Following)
			}
			if err != nil {
				return err
			}
			for _, p := range profiles {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.Email, p.Username)
			}
			return nil
		},
	}
}

func printProfile(w io.Writer, p sphare.Profile) {
	fmt.Fprintf(w, "email:     %s\n", p.Email)
	fmt.Fprintf(w, "username:  %s\n", p.Username)
	fmt.Fprintf(w, "bio:       %s\n", p.Bio)
	fmt.Fprintf(w, "followers: %d\n", len(p.Follower))
	fmt.Fprintf(w, "following: %d\n", len(p.Following))
	fmt.Fprintf(w, "blogs:     %d\n", len(p.Blogs))
}
