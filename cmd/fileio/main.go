package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/shawnding/incubator-iceberg/api"
	"github.com/shawnding/incubator-iceberg/api/clients"
	"github.com/shawnding/incubator-iceberg/cmd/flags"
	"github.com/shawnding/incubator-iceberg/interfaces"
	"github.com/shawnding/incubator-iceberg/storage"
)

var errMissingLocation = errors.New("expected exactly one location argument")

func main() {
	app := &cli.App{
		Name:  "fileio",
		Usage: "Read, write and delete files on pluggable storage backends",
		Flags: append(append(append([]cli.Flag{}, flags.StorageFlags...), flags.GatewayFlags...), flags.LogFlags...),
		Commands: []*cli.Command{
			{
				Name:      "cat",
				Usage:     "write a file to stdout",
				ArgsUsage: "<location>",
				Action: withFileIO(func(ctx context.Context, fio storageClient, location string) error {
					return catFile(ctx, fio, location, os.Stdout)
				}),
			},
			{
				Name:      "put",
				Usage:     "write stdin to a file",
				ArgsUsage: "<location>",
				Action: withFileIO(func(ctx context.Context, fio storageClient, location string) error {
					n, err := putFile(ctx, fio, location, os.Stdin)
					if err != nil {
						return err
					}
					fmt.Fprintf(os.Stderr, "wrote %d bytes to %s\n", n, location)
					return nil
				}),
			},
			{
				Name:      "rm",
				Usage:     "delete a file",
				ArgsUsage: "<location>",
				Action: withFileIO(func(ctx context.Context, fio storageClient, location string) error {
					return fio.DeleteFile(ctx, location)
				}),
			},
			{
				Name:      "mkdir",
				Usage:     "create a directory and its parents",
				ArgsUsage: "<location>",
				Action: withFileIO(func(ctx context.Context, fio storageClient, location string) error {
					created, err := fio.Mkdir(ctx, location)
					if err != nil {
						return err
					}
					if !created {
						fmt.Fprintf(os.Stderr, "%s already exists\n", location)
					}
					return nil
				}),
			},
			{
				Name:      "stat",
				Usage:     "print a file's size and backend",
				ArgsUsage: "<location>",
				Action: withFileIO(func(ctx context.Context, fio storageClient, location string) error {
					return statFile(ctx, fio, location, os.Stdout)
				}),
			},
			{
				Name:  "backends",
				Usage: "list configured backends",
				Action: func(cCtx *cli.Context) error {
					sess, err := openStorage(cCtx, flags.SetupLogger(cCtx))
					if err != nil {
						return err
					}
					defer sess.close()
					return listBackends(sess.backends(), os.Stdout)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// storageClient is a FileIO that can name the backend serving a location.
// Both the local registry and the gateway client satisfy it.
type storageClient interface {
	interfaces.FileIO
	PropertiesFor(location string) (interfaces.BackendProperties, error)
}

type session struct {
	fio      storageClient
	backends func() []api.BackendInfo
	close    func()
}

type locationAction func(ctx context.Context, fio storageClient, location string) error

func withFileIO(action locationAction) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		if cCtx.NArg() != 1 {
			return errMissingLocation
		}

		sess, err := openStorage(cCtx, flags.SetupLogger(cCtx))
		if err != nil {
			return err
		}
		defer sess.close()

		return action(cCtx.Context, sess.fio, cCtx.Args().First())
	}
}

// openStorage connects to --gateway when given, or builds the backends
// named by the storage configuration.
func openStorage(cCtx *cli.Context, logger *slog.Logger) (*session, error) {
	if addr := cCtx.String(flags.GatewayFlag.Name); addr != "" {
		client, err := clients.NewGatewayClient(cCtx.Context, addr, cCtx.Duration(flags.GatewayTimeoutFlag.Name))
		if err != nil {
			return nil, err
		}
		logger.Debug("Connected to storage gateway", slog.String("addr", addr), slog.String("name", client.Properties().Name))
		return &session{
			fio:      client,
			backends: client.Backends,
			close:    func() {},
		}, nil
	}

	registry, err := buildRegistry(cCtx, logger)
	if err != nil {
		return nil, err
	}
	return &session{
		fio:      storage.NewResolvingFileIO(registry, logger),
		backends: func() []api.BackendInfo { return describeRegistry(registry) },
		close: func() {
			if err := registry.Close(); err != nil {
				logger.Warn("Failed to close storage backends", "err", err)
			}
		},
	}, nil
}

func buildRegistry(cCtx *cli.Context, logger *slog.Logger) (*storage.Registry, error) {
	cfg, err := flags.LoadConfig(cCtx)
	if err != nil {
		return nil, err
	}
	return storage.NewBackendFactory(logger).BuildRegistry(cCtx.Context, cfg, nil)
}

func describeRegistry(registry *storage.Registry) []api.BackendInfo {
	var infos []api.BackendInfo
	for _, info := range registry.Describe() {
		infos = append(infos, api.NewBackendInfo(info.Scheme, info.Default, info.Properties))
	}
	return infos
}

func catFile(ctx context.Context, fio interfaces.FileIO, location string, w io.Writer) error {
	in, err := fio.NewInputFile(ctx, location)
	if err != nil {
		return err
	}
	defer in.Close()

	_, err = io.Copy(w, in)
	return err
}

// putFile copies r to location, aborting the write when r fails.
func putFile(ctx context.Context, fio interfaces.FileIO, location string, r io.Reader) (int64, error) {
	out, err := fio.NewOutputFile(ctx, location)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, r)
	if err != nil {
		return n, errors.Join(err, out.Abort())
	}
	return n, out.Close()
}

func statFile(ctx context.Context, fio storageClient, location string, w io.Writer) error {
	props, err := fio.PropertiesFor(location)
	if err != nil {
		return err
	}

	in, err := fio.NewInputFile(ctx, location)
	if err != nil {
		return err
	}
	defer in.Close()

	size, err := in.Length()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "location: %s\nsize: %d\nbackend: %s\n", location, size, props.Name)
	return nil
}

func listBackends(backends []api.BackendInfo, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCHEME\tBACKEND\tDELETE MISSING\tOVERWRITE\tDEFAULT")
	for _, b := range backends {
		isDefault := ""
		if b.Default {
			isDefault = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", b.Scheme, b.Name, b.DeleteMissing, b.Overwrite, isDefault)
	}
	return tw.Flush()
}
