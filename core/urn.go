package core

import (
	"fmt"
	"strings"
)

// Helpers for decoding metadata catalog urns. A dataset urn looks like
//
//	urn:li:dataset:(urn:li:dataPlatform:snowflake,db.schema.table,PROD)
//
// and a platform urn like
//
//	urn:li:dataPlatform:snowflake

const urnPrefix = "urn:li:"

// URNEntityType returns the entity type segment of a urn, e.g. "dataset"
// or "dataPlatform".
func URNEntityType(urn string) (string, error) {
	if !strings.HasPrefix(urn, urnPrefix) {
		return "", fmt.Errorf("invalid urn %q", urn)
	}
	rest := strings.TrimPrefix(urn, urnPrefix)
	idx := strings.Index(rest, ":")
	if idx <= 0 {
		return "", fmt.Errorf("invalid urn %q", urn)
	}
	return rest[:idx], nil
}

// URNID returns the id portion of a urn, the part after the entity type.
func URNID(urn string) (string, error) {
	entityType, err := URNEntityType(urn)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(urn, urnPrefix+entityType+":"), nil
}

// PlatformName returns the lowercase platform id of a data platform urn.
func PlatformName(platformURN string) (string, error) {
	entityType, err := URNEntityType(platformURN)
	if err != nil {
		return "", err
	}
	if entityType != "dataPlatform" {
		return "", fmt.Errorf("not a data platform urn: %q", platformURN)
	}
	id, err := URNID(platformURN)
	if err != nil {
		return "", err
	}
	return strings.ToLower(id), nil
}

// DatasetName returns the lowercase qualified dataset name encoded inside a
// dataset urn. The urn id is a parenthesized tuple of platform urn, dataset
// name and fabric; the name is the second member.
func DatasetName(datasetURN string) (string, error) {
	id, err := URNID(datasetURN)
	if err != nil {
		return "", err
	}
	id = strings.TrimPrefix(id, "(")
	id = strings.TrimSuffix(id, ")")
	parts := splitURNTuple(id)
	if len(parts) < 2 {
		return "", fmt.Errorf("invalid dataset urn %q", datasetURN)
	}
	return strings.ToLower(parts[1]), nil
}

// DatasetNameParts splits a qualified dataset name on dots. Names with more
// than three segments are truncated to the first three, matching the
// catalog.schema.table convention of the supported warehouses.
func DatasetNameParts(datasetURN string) ([]string, error) {
	name, err := DatasetName(datasetURN)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(name, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return parts, nil
}

// splitURNTuple splits a urn tuple body on commas, respecting nested
// parentheses so platform urns with their own tuples stay intact.
func splitURNTuple(s string) []string {
	var parts []string
	depth := 0
	last := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}
