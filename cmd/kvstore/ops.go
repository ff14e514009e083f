package main

import (
	"fmt"
	"strings"

	"github.com/scott-cotton/cli"

	"github.com/tailored-agentic-units/kvcache/store"
)

func get(cfg *GetConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Get.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: get requires one argument, a key", cli.ErrUsage)
	}

	s, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := s.Get(cfg.runContext(), args[0])
	if err != nil {
		return err
	}
	return writeValue(cc.Out, v)
}

func set(cfg *SetConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Set.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: set requires a key and a value", cli.ErrUsage)
	}
	value, err := valueArg(cc, args[1])
	if err != nil {
		return err
	}

	s, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Set(cfg.runContext(), args[0], value)
}

func mergeKey(cfg *MergeConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Merge.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: merge requires a key and a patch", cli.ErrUsage)
	}
	patch, err := valueArg(cc, args[1])
	if err != nil {
		return err
	}

	s, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cfg.runContext()
	if err := s.Merge(ctx, args[0], patch); err != nil {
		return err
	}
	v, err := s.Get(ctx, args[0])
	if err != nil {
		return err
	}
	return writeValue(cc.Out, v)
}

func mergeCollection(cfg *MergeCollectionConfig, cc *cli.Context, args []string) error {
	args, err := cfg.MergeCollection.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: merge-collection requires a collection key and a members mapping", cli.ErrUsage)
	}
	value, err := valueArg(cc, args[1])
	if err != nil {
		return err
	}
	members, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: members must be a mapping of key to patch", cli.ErrUsage)
	}

	s, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	return s.MergeCollection(cfg.runContext(), args[0], members)
}

func keys(cfg *KeysConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Keys.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) > 1 {
		return fmt.Errorf("%w: keys takes at most one prefix", cli.ErrUsage)
	}
	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}

	s, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	for _, key := range s.KnownKeys(prefix) {
		fmt.Fprintln(cc.Out, key)
	}
	return nil
}

func clearKeys(cfg *ClearConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Clear.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 0 {
		return fmt.Errorf("%w: clear takes no arguments", cli.ErrUsage)
	}

	var keep []string
	for _, key := range strings.Split(cfg.Keep, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keep = append(keep, key)
		}
	}

	s, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Clear(cfg.runContext(), keep...)
}

func update(cfg *UpdateConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Update.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: update requires one argument, a file or -", cli.ErrUsage)
	}
	ops, err := operationsArg(cc, args[0])
	if err != nil {
		return err
	}

	s, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Update(cfg.runContext(), ops)
}

func valueArg(cc *cli.Context, arg string) (any, error) {
	data, err := readArg(cc, arg)
	if err != nil {
		return nil, err
	}
	return parseValue(data)
}

// operationsArg reads an operation batch written as JSON or YAML.
func operationsArg(cc *cli.Context, name string) ([]store.Operation, error) {
	data, err := readSource(cc, name)
	if err != nil {
		return nil, err
	}
	js, err := yamlToJSON(data)
	if err != nil {
		return nil, err
	}
	return store.DecodeOperations(js)
}
