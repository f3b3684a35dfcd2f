// Command axfs manipulates AXFS disk images: format, inspect, and move
// files in and out without mounting anything into the host.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/axis-oc/axisos"
	"github.com/axis-oc/axisos/filesystem/axfs"
)

var (
	flagImage      string
	flagSectorSize int
	flagVerbose    bool

	flagLabel     string
	flagInodes    int
	flagSectors   int
	flagChecksums bool
	flagCoW       bool
)

func main() {
	root := &cobra.Command{
		Use:           "axfs",
		Short:         "inspect and manipulate AXFS disk images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagVerbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVarP(&flagImage, "image", "i", "", "path to the disk image")
	root.PersistentFlags().IntVar(&flagSectorSize, "sector-size", 512, "sector size of the image")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	_ = root.MarkPersistentFlagRequired("image")

	root.AddCommand(formatCmd(), infoCmd(), lsCmd(), catCmd(), putCmd(),
		rmCmd(), mkdirCmd(), rmdirCmd(), mvCmd(), healthCmd())

	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// withVolume opens the image, runs fn, and closes the volume again
func withVolume(fn func(*axfs.FileSystem) error) error {
	vol, err := axisos.Open(flagImage, flagSectorSize, nil)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"image": flagImage,
		"label": vol.FS.Label(),
	}).Debug("mounted volume")
	if err := fn(vol.FS); err != nil {
		vol.Close()
		return err
	}
	return vol.Close()
}

func formatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "format",
		Short: "create an image file and format it as AXFS",
		RunE: func(cmd *cobra.Command, args []string) error {
			vol, err := axisos.Create(flagImage, flagSectorSize, flagSectors, &axfs.FormatOptions{
				Label:     flagLabel,
				MaxInodes: flagInodes,
				Checksums: flagChecksums,
				CoW:       flagCoW,
			})
			if err != nil {
				return err
			}
			info := vol.FS.Info()
			log.WithFields(log.Fields{
				"uuid":   info.UUID,
				"blocks": info.MaxBlocks,
				"inodes": info.MaxInodes,
			}).Debug("formatted volume")
			fmt.Printf("formatted %s: %d sectors, %d blocks, %d inodes\n",
				flagImage, info.TotalSectors, info.MaxBlocks, info.MaxInodes)
			return vol.Close()
		},
	}
	cmd.Flags().StringVar(&flagLabel, "label", "", "volume label")
	cmd.Flags().IntVar(&flagInodes, "inodes", 0, "maximum inode count")
	cmd.Flags().IntVar(&flagSectors, "sectors", 4096, "image size in sectors")
	cmd.Flags().BoolVar(&flagChecksums, "checksums", false, "enable per-block checksums")
	cmd.Flags().BoolVar(&flagCoW, "cow", false, "enable copy-on-write updates")
	return cmd
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "print volume identity, geometry and counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(func(fs *axfs.FileSystem) error {
				info := fs.Info()
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "label:\t%s\n", info.Label)
				fmt.Fprintf(w, "uuid:\t%s\n", info.UUID)
				fmt.Fprintf(w, "version:\t%d\n", info.Version)
				fmt.Fprintf(w, "sector size:\t%d\n", info.SectorSize)
				fmt.Fprintf(w, "total sectors:\t%d\n", info.TotalSectors)
				fmt.Fprintf(w, "blocks:\t%d free / %d\n", info.FreeBlocks, info.MaxBlocks)
				fmt.Fprintf(w, "inodes:\t%d free / %d\n", info.FreeInodes, info.MaxInodes)
				fmt.Fprintf(w, "data start:\t%d\n", info.DataStart)
				fmt.Fprintf(w, "generation:\t%d\n", info.Generation)
				fmt.Fprintf(w, "checksums:\t%v (%d failures)\n", info.Checksums, info.ChecksumFails)
				fmt.Fprintf(w, "cow:\t%v (generation %d)\n", info.CoW, info.CowGeneration)
				fmt.Fprintf(w, "lifetime io:\t%d reads / %d writes\n", info.LifetimeReads, info.LifetimeWrites)
				return w.Flush()
			})
		},
	}
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <path>",
		Short: "list a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(func(fs *axfs.FileSystem) error {
				entries, err := fs.ListDir(args[0])
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%o\t%d\t%s\t%s\n",
						e.Type, e.Mode, e.Size, e.ModTime.Format("2006-01-02 15:04"), e.Name)
				}
				return w.Flush()
			})
		},
	}
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "print a file's content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(func(fs *axfs.FileSystem) error {
				b, err := fs.ReadFile(args[0])
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(b)
				return err
			})
		},
	}
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-file> <path>",
		Short: "copy a local file into the image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withVolume(func(fs *axfs.FileSystem) error {
				return fs.WriteFile(args[1], b)
			})
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "remove a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(func(fs *axfs.FileSystem) error {
				return fs.RemoveFile(args[0])
			})
		},
	}
}

func mkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "create a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(func(fs *axfs.FileSystem) error {
				return fs.Mkdir(args[0])
			})
		},
	}
}

func rmdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <path>",
		Short: "remove an empty directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(func(fs *axfs.FileSystem) error {
				return fs.Rmdir(args[0])
			})
		},
	}
}

func mvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <old> <new>",
		Short: "rename or move a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(func(fs *axfs.FileSystem) error {
				return fs.Rename(args[0], args[1])
			})
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "run the volume self-check",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(func(fs *axfs.FileSystem) error {
				h := fs.Health()
				if h.OK {
					fmt.Println("ok")
					return nil
				}
				for _, issue := range h.Issues {
					fmt.Println(issue)
				}
				return fmt.Errorf("%d issue(s) found", len(h.Issues))
			})
		},
	}
}
