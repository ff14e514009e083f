package main

import (
	"github.com/scott-cotton/cli"
)

func MainCommand() *cli.Command {
	cfg := &MainConfig{}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}

	return cli.NewCommandAt(&cfg.Main, "kvstore").
		WithSynopsis("kvstore [opts] command [opts]").
		WithDescription("kvstore reads and writes a reactive key/value store.").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return kvstoreMain(cfg, cc, args)
		}).
		WithSubs(
			GetCommand(cfg),
			SetCommand(cfg),
			MergeCommand(cfg),
			MergeCollectionCommand(cfg),
			KeysCommand(cfg),
			ClearCommand(cfg),
			UpdateCommand(cfg),
			ApplyCommand(cfg),
			ServeCommand(cfg))
}

func GetCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &GetConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Get, "get").
		WithAliases("g").
		WithSynopsis("get <key>").
		WithDescription("print the value stored under key").
		WithRun(func(cc *cli.Context, args []string) error {
			return get(cfg, cc, args)
		})
}

func SetCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &SetConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Set, "set").
		WithAliases("s").
		WithSynopsis("set <key> <value|->").
		WithDescription("replace the value of key; value is JSON or YAML, null removes the key").
		WithRun(func(cc *cli.Context, args []string) error {
			return set(cfg, cc, args)
		})
}

func MergeCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &MergeConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Merge, "merge").
		WithAliases("m").
		WithSynopsis("merge <key> <patch|->").
		WithDescription("deep merge patch into the value of key; null fields delete").
		WithRun(func(cc *cli.Context, args []string) error {
			return mergeKey(cfg, cc, args)
		})
}

func MergeCollectionCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &MergeCollectionConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.MergeCollection, "merge-collection").
		WithAliases("mc").
		WithSynopsis("merge-collection <collection> <members|->").
		WithDescription("merge a mapping of member key to patch into a collection").
		WithRun(func(cc *cli.Context, args []string) error {
			return mergeCollection(cfg, cc, args)
		})
}

func KeysCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &KeysConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Keys, "keys").
		WithAliases("k", "ls").
		WithSynopsis("keys [prefix]").
		WithDescription("list stored keys").
		WithRun(func(cc *cli.Context, args []string) error {
			return keys(cfg, cc, args)
		})
}

func ClearCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ClearConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Clear, "clear").
		WithSynopsis("clear [-keep k1,k2]").
		WithDescription("remove every key except those kept").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return clearKeys(cfg, cc, args)
		})
}

func UpdateCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &UpdateConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Update, "update").
		WithAliases("u").
		WithSynopsis("update <file|->").
		WithDescription(updateDescription).
		WithRun(func(cc *cli.Context, args []string) error {
			return update(cfg, cc, args)
		})
}

const updateDescription = `update applies a batch of operations in order.

The batch is a JSON or YAML list of operations:

  - method: set
    key: session
    value: {user: ada}
  - method: merge
    key: session
    value: {token: null}
  - method: multiSet
    value: {a: 1, b: 2}
  - method: mergeCollection
    key: report_
    value: {report_1: {done: true}}

The whole batch is validated before anything is written.`

func ApplyCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ApplyConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Apply, "apply").
		WithAliases("a").
		WithSynopsis("apply -watch <key> [-where <expr>] [-aggregate] <file|->").
		WithDescription("apply an operation batch and print the deliveries seen by a watcher as diffs").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return apply(cfg, cc, args)
		})
}

func ServeCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ServeConfig{MainConfig: mainCfg, Addr: "localhost:9140"}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Serve, "serve").
		WithSynopsis("serve [-addr <addr>]").
		WithDescription("serve the configured storage provider over connect RPC").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return serve(cfg, cc, args)
		})
}
