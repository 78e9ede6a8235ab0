// Command replay is thin plumbing over core/replay.Engine: it parses flags,
// builds a StateSource from a fixture config file, and prints the resulting
// ReplayResult as JSON. No replay logic lives here.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/reconstruct"
	"github.com/sui-sandbox/replaycore/core/replay"
	"github.com/sui-sandbox/replaycore/core/replay/config"
	"github.com/sui-sandbox/replaycore/core/resolver"
	"github.com/sui-sandbox/replaycore/core/source"
	"github.com/sui-sandbox/replaycore/core/vm"
)

type runOpts struct {
	digest       string
	sourceConfig string
	configPath   string
	reconcile    string
}

func main() {
	var opts runOpts

	flags := []cli.Flag{
		&cli.StringFlag{Name: "digest", Usage: "transaction digest to replay", Required: true, Destination: &opts.digest},
		&cli.StringFlag{Name: "source-config", Usage: "path to a fixture StateSource JSON file", Required: true, Destination: &opts.sourceConfig},
		&cli.StringFlag{Name: "config", Usage: "path to a replay config TOML/YAML file (optional)", Destination: &opts.configPath},
		&cli.StringFlag{Name: "reconcile", Usage: "override the configured reconciliation policy (off|lenient|strict)", Destination: &opts.reconcile},
	}

	app := &cli.App{
		Name:  "replay",
		Usage: "replay or analyze a historical transaction against the sandboxed core",
		Commands: []*cli.Command{
			{
				Name:  "replay",
				Usage: "hydrate, execute and reconcile a transaction, printing a ReplayResult",
				Flags: flags,
				Action: func(c *cli.Context) error {
					return run(c.Context, opts, false)
				},
			},
			{
				Name:  "analyze",
				Usage: "report readiness (missing packages/inputs) without executing",
				Flags: flags,
				Action: func(c *cli.Context) error {
					return run(c.Context, opts, true)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts runOpts, analyzeOnly bool) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	src, err := source.LoadFixtureFile(opts.sourceConfig)
	if err != nil {
		return err
	}

	replayCfg := config.Default()
	if opts.configPath != "" {
		if loaded, err := config.LoadTOML(opts.configPath); err == nil {
			replayCfg = loaded
		} else if loaded, yerr := config.LoadYAML(opts.configPath); yerr == nil {
			replayCfg = loaded
		} else {
			return fmt.Errorf("replay: could not parse config %s as TOML or YAML: %v / %v", opts.configPath, err, yerr)
		}
	}
	if opts.reconcile != "" {
		replayCfg.Reconciliation = config.ReconciliationPolicy(opts.reconcile)
	}

	// sessionCh carries the SessionID for the in-flight replay over to the
	// interrupt handler below, so Ctrl-C requests cooperative cancellation
	// through the engine's SessionRegistry rather than killing the process.
	sessionCh := make(chan replay.SessionID, 1)

	engine := replay.NewEngine(
		src,
		noFramework{},
		resolver.JSONBytecodeInspector{},
		func() vm.NativeVM { return &placeholderVM{} },
		nil,
		nil,
		log,
		replay.EngineConfig{
			Resolver:    resolver.DefaultConfig(),
			Reconstruct: reconstruct.DefaultConfig(),
			Replay:      replayCfg,
			OnSession: func(id replay.SessionID) {
				select {
				case sessionCh <- id:
				default:
				}
			},
		},
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; !ok {
			return
		}
		if id, ok := <-sessionCh; ok {
			log.Info("replay: interrupt received, cancelling session", zap.Uint64("session_id", uint64(id)))
			engine.Cancel(id)
		}
	}()

	var result *replay.ReplayResult
	if analyzeOnly {
		result, err = engine.AnalyzeOnly(ctx, opts.digest)
	} else {
		result, err = engine.Replay(ctx, opts.digest)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// noFramework loads no bundled framework packages; a real deployment embeds
// the actual framework bytecode the way a node embeds its genesis state.
type noFramework struct{}

func (noFramework) LoadFramework(movetypes.AccountAddress) (*movetypes.Package, bool) { return nil, false }

// placeholderVM satisfies vm.NativeVM without interpreting any bytecode: it
// is wiring for the CLI to run end-to-end, not a Move execution engine. A
// real deployment replaces this with a binding to the reference VM.
type placeholderVM struct{}

func (p *placeholderVM) Install(ext *vm.Extensions) error { return nil }

func (p *placeholderVM) PublishModule(runtimeAddr movetypes.AccountAddress, mod movetypes.Module) error {
	return nil
}

func (p *placeholderVM) RegisterInput(obj *movetypes.Object, ownership movetypes.Ownership, containedIDs []movetypes.AccountAddress) error {
	return nil
}

func (p *placeholderVM) CallFunction(ctx context.Context, call vm.CallMetadata, args []vm.Value) (vm.CallOutcome, error) {
	return vm.CallOutcome{}, &vm.AbortInfo{
		CommandIndex: call.CommandIndex,
		Location:     call.Package.Hex() + "::" + call.Module + "::" + call.Function,
		Reason:       0,
	}
}
