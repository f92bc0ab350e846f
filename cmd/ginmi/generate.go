package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ginmihq/ginmi/internal/cache"
	"github.com/ginmihq/ginmi/internal/cache/disk"
	"github.com/ginmihq/ginmi/internal/model"
	"github.com/ginmihq/ginmi/internal/model/contract"
	_ "github.com/ginmihq/ginmi/internal/model/providers"
	"github.com/ginmihq/ginmi/internal/transcript"
	"github.com/ginmihq/ginmi/internal/usage"

	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt...]",
	Short: "Generate a completion from a model",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")

		spec, _ := cmd.Flags().GetString("model")
		if spec == "" {
			spec = cfg.Models.Default
		}

		genConfig, err := cfg.GenerateConfig()
		if err != nil {
			return err
		}
		genConfig = genConfig.Merge(flagConfig(cmd))

		opts := model.GetModelOptions{Config: genConfig}
		if entry, ok := cfg.Endpoint(spec); ok {
			opts.BaseURL = entry.BaseURL
			opts.APIKey = entry.APIKey
		}

		useCache, _ := cmd.Flags().GetBool("cache")
		if useCache {
			expiry, err := cache.ParseExpiry(cfg.Cache.Expiry)
			if err != nil {
				return err
			}
			store, err := disk.NewStore(cfg.Cache.Dir, expiry)
			if err != nil {
				return err
			}
			opts.CacheStore = store
		}

		ctx := usage.WithRunScope(cmd.Context())
		ctx = usage.WithSampleScope(ctx, cfg.UsageLimits())
		recorder := transcript.NewMemoryRecorder()
		ctx = transcript.WithRecorder(ctx, recorder)

		m, err := model.GetModel(ctx, spec, opts)
		if err != nil {
			return err
		}

		generateOpts := model.GenerateOptions{}
		if useCache {
			policy := cache.DefaultPolicy()
			policy.Expiry = cfg.Cache.Expiry
			generateOpts.Cache = &policy
		}

		output, err := m.GenerateText(ctx, prompt, generateOpts)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), output.Completion())

		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			printUsage(cmd, ctx)
			printEvents(cmd, recorder)
		}
		return nil
	},
}

// flagConfig lifts explicitly set generation flags into config overrides.
func flagConfig(cmd *cobra.Command) contract.GenerateConfig {
	var out contract.GenerateConfig
	if cmd.Flags().Changed("temperature") {
		v, _ := cmd.Flags().GetFloat64("temperature")
		out.Temperature = contract.Float64(v)
	}
	if cmd.Flags().Changed("max-tokens") {
		v, _ := cmd.Flags().GetInt("max-tokens")
		out.MaxTokens = contract.Int(v)
	}
	if cmd.Flags().Changed("max-retries") {
		v, _ := cmd.Flags().GetInt("max-retries")
		out.MaxRetries = contract.Int(v)
	}
	if cmd.Flags().Changed("max-connections") {
		v, _ := cmd.Flags().GetInt("max-connections")
		out.MaxConnections = contract.Int(v)
	}
	if cmd.Flags().Changed("timeout") {
		v, _ := cmd.Flags().GetDuration("timeout")
		out.Timeout = contract.Duration(v)
	}
	if cmd.Flags().Changed("system") {
		v, _ := cmd.Flags().GetString("system")
		out.SystemMessage = contract.String(v)
	}
	return out
}

func printUsage(cmd *cobra.Command, ctx context.Context) {
	run := usage.RunScope(ctx)
	if run == nil {
		return
	}
	for name, u := range run.Usage() {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: input=%d output=%d total=%d\n",
			name, u.InputTokens, u.OutputTokens, u.TotalTokens)
	}
}

func printEvents(cmd *cobra.Command, recorder *transcript.MemoryRecorder) {
	for _, event := range recorder.Events() {
		data, err := json.MarshalIndent(event, "", "  ")
		if err != nil {
			continue
		}
		fmt.Fprintln(cmd.ErrOrStderr(), string(data))
	}
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringP("model", "m", "", "model spec (family/name)")
	generateCmd.Flags().String("system", "", "system message")
	generateCmd.Flags().Float64("temperature", 0, "sampling temperature")
	generateCmd.Flags().Int("max-tokens", 0, "max output tokens")
	generateCmd.Flags().Int("max-retries", 0, "retries after the first attempt (0 = unbounded)")
	generateCmd.Flags().Int("max-connections", 0, "concurrent connections to the backend")
	generateCmd.Flags().Duration("timeout", 0, "total budget across retries")
	generateCmd.Flags().Bool("cache", false, "cache responses on disk")
	generateCmd.Flags().BoolP("verbose", "v", false, "print usage and the event transcript")
}
