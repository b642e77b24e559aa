package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"inputlink/internal/config"
)

func configCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(configInitCmd(g), configShowCmd(g))
	return cmd
}

func configInitCmd(g *globals) *cobra.Command {
	var (
		force   bool
		address string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config with a fresh random key and IV",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := config.NewManager(g.configPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(mgr.Path()); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", mgr.Path())
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			cfg := config.DefaultConfig()
			if address != "" {
				cfg.Host.Address = address
			}
			key := make([]byte, 16)
			iv := make([]byte, 16)
			if _, err := rand.Read(key); err != nil {
				return err
			}
			if _, err := rand.Read(iv); err != nil {
				return err
			}
			cfg.Crypto.Key = hex.EncodeToString(key)
			cfg.Crypto.IV = hex.EncodeToString(iv)

			mgr.Set(cfg)
			if err := mgr.Save(); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", mgr.Path())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	cmd.Flags().StringVar(&address, "address", "", "host address to write")
	return cmd
}

func configShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := config.NewManager(g.configPath)
			if err != nil {
				return err
			}
			if err := mgr.Load(); err != nil {
				return err
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(mgr.Get())
		},
	}
}
