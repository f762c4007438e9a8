// Command emberjit loads a compact IR bytecode image and runs it against
// the stack-machine interpreter, optionally caching the decoded image
// between runs.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"emberjit/emit"
	"emberjit/exec"
	"emberjit/ir"
)

func main() {
	useCache := flag.Bool("cache", false, "cache the decoded image keyed by file path and contents hash")
	clearCache := flag.Bool("clear-cache", false, "clear the image cache and exit")
	cacheStats := flag.Bool("cache-stats", false, "show image cache statistics and exit")
	verbose := flag.Bool("v", false, "log each executed instruction at trace level")
	ctxSize := flag.Int("ctx-size", 0, "size in bytes of the context buffer passed to Execute")
	flag.Parse()

	if *clearCache {
		if err := emit.ClearCache(); err != nil {
			fmt.Fprintf(os.Stderr, "emberjit: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("cache cleared")
		return
	}

	if *cacheStats {
		count, size, err := emit.GetCacheStats()
		if err != nil {
			fmt.Fprintf(os.Stderr, "emberjit: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("cached images: %d\ntotal size: %d bytes\n", count, size)
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: emberjit [flags] <image-file>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(args[0], *useCache, *verbose, *ctxSize); err != nil {
		fmt.Fprintf(os.Stderr, "emberjit: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, useCache, verbose bool, ctxSize int) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image file: %w", err)
	}
	hash := emit.HashSource(raw)

	var img *ir.Image
	if useCache {
		if cached, err := emit.LoadFromCache(path, hash); err == nil {
			fmt.Println("using cached image")
			img = cached
		}
	}

	if img == nil {
		img, err = ir.Decode(bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("decode image: %w", err)
		}
		if useCache {
			if err := emit.SaveToCache(path, img, hash); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to save cache: %v\n", err)
			}
		}
	}

	interp := exec.New(img)
	if verbose {
		interp.Logger = exec.NewLogger(exec.LogTrace)
	}

	ctx := make([]byte, ctxSize)
	if err := interp.Execute(ctx); err != nil {
		return fmt.Errorf("execution: %w", err)
	}

	fmt.Printf("execution complete (%d instructions, %d bytes of context)\n", len(img.Instructions), len(ctx))
	return nil
}
