// Command blkz is a small file-level front end for pkg/blkz: compress or
// decompress a single file using the blocked shuffling/compression engine.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/falk/blkz/pkg/blkz"
)

func main() {
	decompress := flag.Bool("d", false, "Decompress instead of compress")
	level := flag.Int("l", 5, "Compression level (0-9, 0 = store)")
	typesize := flag.Int("t", 4, "Element size in bytes (1-255)")
	compressor := flag.String("c", "blosclz", "Compressor: "+strings.Join(blkz.ListCompressors(), ", "))
	shuffleName := flag.String("s", "byte", "Shuffle: none, byte, bit")
	nthreads := flag.Int("p", 1, "Worker goroutines")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Println("Usage: blkz [options] <file>")
		flag.PrintDefaults()
		return
	}
	inputFile := args[0]

	if *decompress {
		if err := runDecompress(inputFile, *nthreads); err != nil {
			fmt.Printf("Decompression failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	codecID, err := blkz.CompnameToCompcode(*compressor)
	if err != nil {
		fmt.Printf("Unknown compressor %q: %v\n", *compressor, err)
		os.Exit(1)
	}
	shuffle, err := parseShuffle(*shuffleName)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
	if err := runCompress(inputFile, *level, *typesize, codecID, shuffle, *nthreads); err != nil {
		fmt.Printf("Compression failed: %v\n", err)
		os.Exit(1)
	}
}

func parseShuffle(name string) (blkz.Shuffle, error) {
	switch strings.ToLower(name) {
	case "none":
		return blkz.NoShuffle, nil
	case "byte":
		return blkz.ByteShuffle, nil
	case "bit":
		return blkz.BitShuffle, nil
	default:
		return 0, fmt.Errorf("unknown shuffle %q (want none, byte, or bit)", name)
	}
}

func runCompress(inputFile string, level, typesize int, codecID blkz.Compressor, shuffle blkz.Shuffle, nthreads int) error {
	src, err := os.ReadFile(inputFile)
	if err != nil {
		return err
	}

	ctx := blkz.CreateCctx(blkz.CParams{
		Typesize: typesize,
		Clevel:   level,
		Codec:    codecID,
		Shuffle:  shuffle,
		NThreads: nthreads,
	})
	defer blkz.FreeCtx(ctx)

	dst := make([]byte, len(src)+blkz.MaxOverhead)
	n, err := ctx.CompressCtx(len(src), src, dst)
	if err != nil {
		return err
	}

	outPath := inputFile + ".blkz"
	if err := os.WriteFile(outPath, dst[:n], 0o644); err != nil {
		return err
	}
	fmt.Printf("%s -> %s (%d -> %d bytes)\n", inputFile, outPath, len(src), n)
	return nil
}

func runDecompress(inputFile string, nthreads int) error {
	f, err := os.Open(inputFile)
	if err != nil {
		return err
	}
	defer f.Close()

	src, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	nbytes, _, _, err := blkz.CbufferSizes(src)
	if err != nil {
		return err
	}

	dctx := blkz.CreateDctx(blkz.DParams{NThreads: nthreads})
	defer blkz.FreeCtx(dctx)

	dst := make([]byte, nbytes)
	n, err := dctx.DecompressCtx(src, dst)
	if err != nil {
		return err
	}

	outPath := strings.TrimSuffix(inputFile, ".blkz")
	if outPath == inputFile {
		outPath += ".out"
	}
	if err := os.WriteFile(outPath, dst[:n], 0o644); err != nil {
		return err
	}
	fmt.Printf("%s -> %s (%d -> %d bytes)\n", inputFile, outPath, len(src), n)
	return nil
}
