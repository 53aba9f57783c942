// Package datasets loads the declarative dataset and comparison file.
//
// The file is YAML with three top-level sections: datasets (keyed by logical
// name), comparisons (an ordered list) and validation options. Loading both
// parses and resolves the file: normalizer, converter and dtype names become
// closed kinds from the normalize package, canonical column names are
// computed, and every structural problem is reported as a *ConfigError that
// names the dataset or comparison and the offending field.
//
//	file, err := datasets.Load("datasets.yaml")
//	if err != nil {
//	    return err
//	}
//	for _, cmp := range file.Comparisons {
//	    left := file.Datasets[cmp.Left]
//	    ...
//	}
package datasets
