/*
Copyright © 2025 Dmytro Volos

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dvolos/tometran/internal/llm"
	"github.com/dvolos/tometran/internal/mt"
	"github.com/dvolos/tometran/internal/ratelimit"
	"github.com/dvolos/tometran/internal/retrieval"
	"github.com/dvolos/tometran/internal/store"
	"github.com/dvolos/tometran/internal/workflow"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// llmParams is the generator configuration shared by every command that
// talks to a model.
type llmParams struct {
	provider string
	model    string
	apiKey   string
	baseURL  string
	rpm      int
}

// runtimeParams collects everything needed to assemble a workflow runtime.
type runtimeParams struct {
	llm            llmParams
	esURL          string
	esIndex        string
	esSourceField  string
	esTargetField  string
	backTranslator string
	credentials    string
}

// buildGenerator constructs the LLM client from CLI parameters.
func buildGenerator(p llmParams) (llm.Generator, error) {
	switch p.provider {
	case "openai":
		if p.apiKey == "" {
			return nil, fmt.Errorf("openai provider requires --api-key")
		}
		return llm.NewOpenAIGenerator(p.apiKey, p.baseURL, p.model), nil
	case "openrouter":
		if p.apiKey == "" {
			return nil, fmt.Errorf("openrouter provider requires --api-key")
		}
		base := p.baseURL
		if base == "" {
			base = openRouterBaseURL
		}
		return llm.NewOpenAIGenerator(p.apiKey, base, p.model), nil
	case "ollama":
		return llm.NewOllamaGenerator(p.baseURL, p.model), nil
	}
	return nil, fmt.Errorf("unknown provider: %s", p.provider)
}

// buildRuntime wires the generator, retrieval client, rate limiter,
// back-translator and persistence into one workflow runtime.
func buildRuntime(p runtimeParams, db *store.Store, out workflow.RecordWriter, logger *slog.Logger) (*workflow.Runtime, error) {
	gen, err := buildGenerator(p.llm)
	if err != nil {
		return nil, err
	}

	rt := &workflow.Runtime{
		Generator: gen,
		Output:    out,
		Memory:    db,
		Logger:    logger,
	}
	if p.llm.rpm > 0 {
		rt.Limiter = ratelimit.New(p.llm.rpm)
	}
	if p.esURL != "" {
		rt.Retrieval = retrieval.NewElasticClient(p.esURL, p.esIndex, p.esSourceField, p.esTargetField)
	}
	switch p.backTranslator {
	case "google":
		rt.BackTranslator = mt.NewGoogleBackTranslator(p.credentials)
	case "llm", "":
		// The generator handles back-translation through a prompt.
	default:
		return nil, fmt.Errorf("unknown back-translator: %s", p.backTranslator)
	}
	return rt, nil
}
