package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/reactive-kv/rkv/lib/store"
	"github.com/spf13/cobra"
)

// parseValue interprets a command line argument as a JSON document.
// Bare words that are not valid JSON are treated as strings, so
// `rkv kv set greeting hello` works without quoting.
func parseValue(arg string) interface{} {
	var value interface{}
	if err := json.Unmarshal([]byte(arg), &value); err != nil {
		return arg
	}
	return value
}

// printValue renders a store value as compact JSON
func printValue(value interface{}) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(encoded)
}

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Long:  "Sets the value for a key. The value is parsed as JSON; bare words are treated as strings.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := parseValue(args[1])
			if err := rpcStore.Set(key, value); err != nil {
				return err
			} else {
				fmt.Println("set successfully")
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if resp, ok, err := rpcStore.Get(key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%v, value=%s\n", key, ok, printValue(resp))
			}
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := rpcStore.Set(key, nil); err != nil {
				return err
			} else {
				fmt.Println("delete successfully")
			}
			return nil
		},
	}
	mergeCmd = &cobra.Command{
		Use:   "merge [key] [delta]",
		Short: "Deep-merges a delta into the value for a key",
		Long:  "Deep-merges a delta into the value for a key. The delta is parsed as JSON; null properties remove the property from the stored value.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			delta := parseValue(args[1])
			if err := rpcStore.Merge(key, delta); err != nil {
				return err
			} else {
				fmt.Println("merge successfully")
			}
			return nil
		},
	}
	mergeCollectionCmd = &cobra.Command{
		Use:   "merge-collection [prefix] [deltas]",
		Short: "Merges a delta per member of a collection",
		Long:  "Merges a delta per member of a collection. Deltas is a JSON object mapping full member keys (prefix included) to their delta, e.g. '{\"users_1\":{\"name\":\"ada\"}}'. Subscribers see the batch as one coherent change.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := args[0]
			var deltas map[string]interface{}
			if err := json.Unmarshal([]byte(args[1]), &deltas); err != nil {
				return fmt.Errorf("deltas must be a JSON object: %w", err)
			}
			if err := rpcStore.MergeCollection(prefix, deltas); err != nil {
				return err
			} else {
				fmt.Println("merge-collection successfully")
			}
			return nil
		},
	}
	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Lists all keys in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := rpcStore.GetAllKeys()
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Println(key)
			}
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Removes all keys from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.Clear(); err != nil {
				return err
			} else {
				fmt.Println("clear successfully")
			}
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints metadata about the server's storage backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := rpcStore.GetBackendInfo()
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}
	watchCmd = &cobra.Command{
		Use:   "watch [key]",
		Short: "Watches a key or collection and prints every change",
		Long:  "Watches a key (or a collection prefix) and prints a line for every delivered change until interrupted. Use --select to narrow the watch to a property path and --collection to receive whole-collection snapshots.",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
)

func init() {
	watchCmd.Flags().String("select", "", "Dot-separated property path to watch instead of the whole value (e.g. 'user.name')")
	watchCmd.Flags().Bool("collection", false, "Deliver whole-collection snapshots instead of per-member changes")
}

func runWatch(cmd *cobra.Command, args []string) error {
	key := args[0]
	selector, _ := cmd.Flags().GetString("select")
	wholeCollection, _ := cmd.Flags().GetBool("collection")

	mapping := store.Mapping{
		Key:                       key,
		WaitForCollectionCallback: wholeCollection,
	}
	if selector != "" {
		mapping.Projection = store.SelectorPath(selector)
	}

	if wholeCollection {
		mapping.CollectionCallback = func(collection map[string]interface{}) {
			pairs := make([]string, 0, len(collection))
			for member, value := range collection {
				pairs = append(pairs, fmt.Sprintf("%s=%s", member, printValue(value)))
			}
			fmt.Printf("collection: {%s}\n", strings.Join(pairs, ", "))
		}
	} else {
		mapping.Callback = func(value interface{}, key string) {
			fmt.Printf("key=%s, value=%s\n", key, printValue(value))
		}
	}

	id, err := rpcStore.Connect(mapping)
	if err != nil {
		return err
	}
	defer rpcStore.Disconnect(id)

	fmt.Printf("watching %s (ctrl-c to stop)\n", key)

	// Block until interrupted
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	return nil
}
