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

// Package ingestor is a multi-tenant document ingestion engine.
//
// An Engine crawls a tenant's object store, extracts text with built-in or
// synthesized handlers, classifies and chunks each document, embeds the
// chunks and loads them into the tenant's structured store and vector
// index. Loaded documents can then be searched by similarity.
//
//	cfg, _ := config.Load("ingestor.yaml")
//	engine, err := ingestor.Open(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	job, err := engine.StartJob(ctx, "acme", core.SourceSpec{Root: "/data/acme", Recursive: true})
//	job, err = engine.Wait(ctx, job.ID)
//
// Synthesized handlers run in a child process started from the same
// executable, so a program embedding the Engine calls synth.ChildMain
// before anything else in main.
package ingestor
