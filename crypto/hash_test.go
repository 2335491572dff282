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

package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var key string = "hello world!"

func TestSHA256Hash(t *testing.T) {
	digest := SHA256Hash([]byte(key))
	assert.Equal(t, len(digest), 44)
}

func TestMessageHash(t *testing.T) {
	body := []byte(`{"method":"get"}`)
	assert.Equal(t, MessageHash(body, 100), MessageHash(body, 100))
	assert.NotEqual(t, MessageHash(body, 100), MessageHash(body, 101))
	assert.Equal(t, SHA256Hash([]byte(`{"method":"get"}100`)), MessageHash(body, 100))
}
