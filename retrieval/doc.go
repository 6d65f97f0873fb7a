// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package retrieval executes the function calls chosen by the router against
// the chunk store.
//
// A Gateway holds one handler per supported function, fixed when it is built,
// and runs every call on a worker pool. The built-in handlers combine:
//   - Semantic search using vector embeddings of the call parameters
//   - Metadata filtering for parameters bound to chunk metadata
//   - Verbatim keyword boosting with stop-word filtering
//
// Results are merged into a ResultSet by call index, never by arrival order.
// A failing call (unknown function, invalid parameters, embedding or store
// error) yields an error entry under its own key and does not affect the
// other calls.
package retrieval
