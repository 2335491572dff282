// Copyright 2019 The go-ultiledger Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ultiledger/go-ultidpos/crypto"
	"github.com/ultiledger/go-ultidpos/log"
)

var genaccountCmd = &cobra.Command{
	Use:   "genaccount",
	Short: "Generate a keypair for an account",
	Long: `Generate a keypair for an account from a secret, the keypair contains
the public key and the address derived from it. A random secret is
generated when none is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		if secret == "" {
			b := make([]byte, 16)
			if _, err := rand.Read(b); err != nil {
				log.Fatalf("generate random secret failed: %v", err)
			}
			secret = hex.EncodeToString(b)
		}
		kp := crypto.KeypairFromSecret(secret)
		fmt.Printf("Secret: %s\nPublicKey: %s\nAddress: %s\n",
			secret, kp.PublicKeyHex(), crypto.AddressFromPublicKey(kp.PublicKey))
	},
}

var secret string

func init() {
	genaccountCmd.Flags().StringVarP(&secret, "secret", "s", "", "secret of the account")
	rootCmd.AddCommand(genaccountCmd)
}
