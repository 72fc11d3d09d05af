package main

import (
	"fmt"
	"time"

	"github.com/SofieTorch/cbba-mobility/internal/client/api"
	"github.com/SofieTorch/cbba-mobility/internal/client/collector"
	"github.com/SofieTorch/cbba-mobility/internal/client/notify"
	"github.com/SofieTorch/cbba-mobility/internal/client/store"
	"github.com/SofieTorch/cbba-mobility/internal/client/syncer"
	"github.com/SofieTorch/cbba-mobility/internal/config"
	"github.com/SofieTorch/cbba-mobility/internal/db"

	"github.com/spf13/cobra"
)

func openStore(cfg config.Config) (*store.Store, func(), error) {
	pool, err := db.ConnectPostgres(cfg.LocalStoreURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open local store: %w", err)
	}
	return store.NewStore(pool), pool.Close, nil
}

func newRecordCmd(cfg config.Config) *cobra.Command {
	var (
		replayPath string
		chunkSize  int
		paceMs     int
		lineID     string
		lineName   string
		discard    bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a trip from a replay capture and finalize it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if lineID != "" && lineName != "" {
				return fmt.Errorf("--line-id and --line-name are mutually exclusive")
			}

			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx := cmd.Context()
			session, err := st.Start(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("recording session %d started\n", session.ID)

			source, err := collector.NewReplaySource(replayPath, chunkSize, time.Duration(paceMs)*time.Millisecond)
			if err != nil {
				return err
			}

			registry := notify.NewRegistry()
			registry.Register(func(p notify.Progress) {
				if p.StoredPoints > 0 {
					fmt.Printf("  stored %d points\n", p.StoredPoints)
				}
			})

			col := collector.New(st, source, source, registry, time.Duration(cfg.HeartbeatSeconds)*time.Second)
			col.Start(ctx)
			source.Wait()
			col.Stop()

			target := store.StatusPendingSync
			ref := store.LineRef{LineName: lineName}
			if lineID != "" {
				ref.LineID = &lineID
			}
			if discard {
				target = store.StatusDiscarded
				ref = store.LineRef{}
			}

			final, err := st.Finalize(ctx, session.ID, ref, target)
			if err != nil {
				return err
			}
			fmt.Printf("session %d finalized as %s\n", final.ID, final.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&replayPath, "replay", "", "JSON capture file to replay (required)")
	cmd.Flags().IntVar(&chunkSize, "chunk", 10, "samples per delivered batch")
	cmd.Flags().IntVar(&paceMs, "pace-ms", 0, "delay between batches in milliseconds")
	cmd.Flags().StringVar(&lineID, "line-id", "", "assign the trip to an existing line")
	cmd.Flags().StringVar(&lineName, "line-name", "", "propose a new line for the trip")
	cmd.Flags().BoolVar(&discard, "discard", false, "finish without uploading")
	_ = cmd.MarkFlagRequired("replay")
	return cmd
}

func newSyncCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload every pending session to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			remote := api.NewClient(cfg.APIBaseURL, cfg.APIToken, time.Duration(cfg.SyncTimeoutSec)*time.Second)
			engine := syncer.New(st, remote, cfg.SyncBatchSize)

			result, err := engine.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("synced %d session(s), %d failed\n", result.Synced, result.Failed)
			for _, id := range result.Conflicts {
				fmt.Printf("session %d diverged from the server; discard the local copy\n", id)
			}
			return nil
		},
	}
}

func newStatusCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active recording and the sync queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx := cmd.Context()
			if current, err := st.Current(ctx); err == nil {
				fmt.Printf("recording: session %d since %s (last activity %s)\n",
					current.ID, current.StartedAt.Format(time.RFC3339), current.LastActivityAt.Format(time.RFC3339))
			} else {
				fmt.Println("recording: none")
			}

			pending, err := st.ListPendingSync(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("pending sync: %d session(s)\n", len(pending))
			for _, session := range pending {
				ended := "unknown"
				if session.EndedAt != nil {
					ended = session.EndedAt.Format(time.RFC3339)
				}
				fmt.Printf("  session %d, ended %s\n", session.ID, ended)
			}
			return nil
		},
	}
}
