/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package medvault-rest runs the medvault controller: a small REST API over the record
// workflow, the local key agent and the records backend.
//
//	Schemes: http, https
//	Version: 0.1.0
//	License: SPDX-License-Identifier: Apache-2.0
//
//	Consumes:
//	- application/json
//
//	Produces:
//	- application/json
//
// swagger:meta
package main

import (
	"github.com/spf13/cobra"

	"github.com/medvault/medvault-go/cmd/medvault-rest/startcmd"
	"github.com/medvault/medvault-go/pkg/common/log"
)

var logger = log.New("medvault/rest-daemon")

func newRootCmd() (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:          "medvault-rest",
		Short:        "Medvault controller daemon",
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	startCmd, err := startcmd.Cmd(&startcmd.HTTPServer{})
	if err != nil {
		return nil, err
	}

	rootCmd.AddCommand(startCmd)

	return rootCmd, nil
}

func main() {
	rootCmd, err := newRootCmd()
	if err != nil {
		logger.Fatalf("failed to create medvault-rest command: %s", err)
	}

	if err := rootCmd.Execute(); err != nil {
		logger.Fatalf("failed to run medvault-rest: %s", err)
	}
}
