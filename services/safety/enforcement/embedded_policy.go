// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enforcement embeds the crisis and compliance pattern definitions
// into the binary. Embedding removes any runtime dependency on config file
// placement: the safety gate cannot start without its patterns, so the
// patterns ship inside the compiled artifact.
package enforcement

import _ "embed"

// CrisisPatterns contains the raw YAML signal-family definitions used by
// the safety gate's input assessment.
//
//go:embed crisis_patterns.yaml
var CrisisPatterns []byte

// CompliancePatterns contains the raw YAML phrase lists used by the
// post-flight response validation checks.
//
//go:embed compliance_patterns.yaml
var CompliancePatterns []byte
