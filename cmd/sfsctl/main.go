// sfsctl manipulates sfs disk images: formatting, listing, moving files in
// and out, integrity checking, and compressing images for distribution.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pierrec/lz4"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
	"github.com/urfave/cli/v2"

	"github.com/diskfs/go-sfs/filesystem/sfs"
	"github.com/diskfs/go-sfs/sync"
	"github.com/diskfs/go-sfs/util"
)

func main() {
	app := &cli.App{
		Name:  "sfsctl",
		Usage: "manage sfs disk images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "path to the disk image",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			formatCommand(),
			lsCommand(),
			dfCommand(),
			statCommand(),
			putCommand(),
			getCommand(),
			catCommand(),
			rmCommand(),
			fsckCommand(),
			dumpCommand(),
			packCommand(),
			unpackCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func imagePath(c *cli.Context) (string, error) {
	path := c.String("image")
	if path == "" {
		return "", fmt.Errorf("an image path is required; pass --image")
	}
	return path, nil
}

func mountImage(c *cli.Context) (*sfs.FileSystem, error) {
	path, err := imagePath(c)
	if err != nil {
		return nil, err
	}
	return sfs.Mount(path, false)
}

func formatCommand() *cli.Command {
	return &cli.Command{
		Name:  "format",
		Usage: "create and format a fresh image",
		Action: func(c *cli.Context) error {
			path := c.String("image")
			if path == "" {
				path = fmt.Sprintf("sfs-%s.img", uuid.NewString()[:8])
			}
			fs, err := sfs.Mount(path, true)
			if err != nil {
				return err
			}
			defer func() { _ = fs.Unmount() }()
			fmt.Printf("formatted %s: %d blocks of %d bytes\n", path, sfs.NumTotalBlocks, sfs.BlockSize)
			return nil
		},
	}
}

func lsCommand() *cli.Command {
	return &cli.Command{
		Name:  "ls",
		Usage: "list the files in an image",
		Action: func(c *cli.Context) error {
			fs, err := mountImage(c)
			if err != nil {
				return err
			}
			defer func() { _ = fs.Unmount() }()
			infos, err := fs.ReadDir("/")
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Printf("%10d  %s\n", info.Size(), info.Name())
			}
			return nil
		},
	}
}

func dfCommand() *cli.Command {
	return &cli.Command{
		Name:  "df",
		Usage: "show capacity and usage",
		Action: func(c *cli.Context) error {
			fs, err := mountImage(c)
			if err != nil {
				return err
			}
			defer func() { _ = fs.Unmount() }()
			stat := fs.FSStat()
			fmt.Printf("block size:   %d\n", stat.BlockSize)
			fmt.Printf("data blocks:  %d total, %d free\n", stat.TotalBlocks, stat.FreeBlocks)
			fmt.Printf("files:        %d used, %d free\n", stat.Files, stat.FilesFree)
			return nil
		},
	}
}

func statCommand() *cli.Command {
	return &cli.Command{
		Name:      "stat",
		Usage:     "show information about a file",
		ArgsUsage: "<name>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("stat takes exactly one file name")
			}
			fs, err := mountImage(c)
			if err != nil {
				return err
			}
			defer func() { _ = fs.Unmount() }()
			info, err := fs.Stat(c.Args().First())
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d bytes\n", info.Name(), info.Size())
			return nil
		},
	}
}

func putCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "copy a host file into the image",
		ArgsUsage: "<hostfile> [name]",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 || c.NArg() > 2 {
				return fmt.Errorf("put takes a host file and an optional image name")
			}
			hostPath := c.Args().Get(0)
			name := c.Args().Get(1)
			if name == "" {
				name = filepath.Base(hostPath)
			}
			fs, err := mountImage(c)
			if err != nil {
				return err
			}
			defer func() { _ = fs.Unmount() }()

			in, err := os.Open(hostPath)
			if err != nil {
				return err
			}
			defer func() { _ = in.Close() }()
			out, err := fs.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_RDWR)
			if err != nil {
				return err
			}
			defer func() { _ = out.Close() }()
			n, err := io.Copy(out, in)
			if err != nil {
				return err
			}
			logrus.Debugf("wrote %d bytes to %s", n, name)
			return nil
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "copy a file out of the image, or every file with --all",
		ArgsUsage: "<name> [hostfile]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "copy every file into the destination directory",
			},
		},
		Action: func(c *cli.Context) error {
			fs, err := mountImage(c)
			if err != nil {
				return err
			}
			defer func() { _ = fs.Unmount() }()

			if c.Bool("all") {
				dir := c.Args().First()
				if dir == "" {
					dir = "."
				}
				return sync.CopyOut(fs, dir)
			}

			if c.NArg() < 1 || c.NArg() > 2 {
				return fmt.Errorf("get takes an image name and an optional host file")
			}
			name := c.Args().Get(0)
			hostPath := c.Args().Get(1)
			if hostPath == "" {
				hostPath = name
			}
			in, err := fs.OpenFile(name, os.O_RDONLY)
			if err != nil {
				return err
			}
			defer func() { _ = in.Close() }()
			out, err := os.Create(hostPath)
			if err != nil {
				return err
			}
			defer func() { _ = out.Close() }()
			_, err = io.Copy(out, in)
			return err
		},
	}
}

func catCommand() *cli.Command {
	return &cli.Command{
		Name:      "cat",
		Usage:     "write a file's contents to stdout",
		ArgsUsage: "<name>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("cat takes exactly one file name")
			}
			fs, err := mountImage(c)
			if err != nil {
				return err
			}
			defer func() { _ = fs.Unmount() }()
			in, err := fs.OpenFile(c.Args().First(), os.O_RDONLY)
			if err != nil {
				return err
			}
			defer func() { _ = in.Close() }()
			_, err = io.Copy(os.Stdout, in)
			return err
		},
	}
}

func rmCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "remove a file from the image",
		ArgsUsage: "<name>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("rm takes exactly one file name")
			}
			fs, err := mountImage(c)
			if err != nil {
				return err
			}
			defer func() { _ = fs.Unmount() }()
			return fs.Remove(c.Args().First())
		},
	}
}

func fsckCommand() *cli.Command {
	return &cli.Command{
		Name:  "fsck",
		Usage: "verify the structural invariants of an image",
		Action: func(c *cli.Context) error {
			fs, err := mountImage(c)
			if err != nil {
				return err
			}
			defer func() { _ = fs.Unmount() }()
			if err := fs.Check(); err != nil {
				return err
			}
			fmt.Println("clean")
			return nil
		},
	}
}

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "hex-dump a file's contents",
		ArgsUsage: "<name>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("dump takes exactly one file name")
			}
			fs, err := mountImage(c)
			if err != nil {
				return err
			}
			defer func() { _ = fs.Unmount() }()
			in, err := fs.OpenFile(c.Args().First(), os.O_RDONLY)
			if err != nil {
				return err
			}
			defer func() { _ = in.Close() }()
			data, err := io.ReadAll(in)
			if err != nil {
				return err
			}
			fmt.Print(util.DumpByteSlice(data, 16))
			return nil
		},
	}
}

func packCommand() *cli.Command {
	return &cli.Command{
		Name:      "pack",
		Usage:     "compress an image for distribution",
		ArgsUsage: "[outfile]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "lz4",
				Usage:   "compression format, lz4 or xz",
			},
		},
		Action: func(c *cli.Context) error {
			path, err := imagePath(c)
			if err != nil {
				return err
			}
			format := c.String("format")
			outPath := c.Args().First()
			if outPath == "" {
				outPath = path + "." + format
			}

			in, err := os.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = in.Close() }()
			out, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer func() { _ = out.Close() }()

			var w io.WriteCloser
			switch format {
			case "lz4":
				w = lz4.NewWriter(out)
			case "xz":
				w, err = xz.NewWriter(out)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown compression format %q", format)
			}
			if _, err := io.Copy(w, in); err != nil {
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}
			fmt.Printf("packed %s into %s\n", path, outPath)
			return nil
		},
	}
}

func unpackCommand() *cli.Command {
	return &cli.Command{
		Name:      "unpack",
		Usage:     "decompress a packed image; format is taken from the extension",
		ArgsUsage: "<packedfile>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("unpack takes exactly one packed file")
			}
			path, err := imagePath(c)
			if err != nil {
				return err
			}
			inPath := c.Args().First()

			in, err := os.Open(inPath)
			if err != nil {
				return err
			}
			defer func() { _ = in.Close() }()

			var r io.Reader
			switch {
			case strings.HasSuffix(inPath, ".lz4"):
				r = lz4.NewReader(in)
			case strings.HasSuffix(inPath, ".xz"):
				r, err = xz.NewReader(in)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("cannot tell the compression format of %q from its name", inPath)
			}

			out, err := os.Create(path)
			if err != nil {
				return err
			}
			defer func() { _ = out.Close() }()
			if _, err := io.Copy(out, r); err != nil {
				return err
			}
			fmt.Printf("unpacked %s into %s\n", inPath, path)
			return nil
		},
	}
}
