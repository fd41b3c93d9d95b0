// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// rdmctl - DMX512 / RDM controller
//
// A CLI tool for driving a DMX512 line and discovering and configuring RDM
// devices on it.

package main

import (
	"os"

	"github.com/Thermoquad/rdmctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
