// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package oplog

import "github.com/cockroachdb/redact"

const (
	// viewsCollection is the per-database collection holding view
	// definitions. Writes to it swap the database's view catalog and
	// must not share a batch with other operations.
	viewsCollection = "system.views"

	// serverConfigurationDB and serverConfigurationCollection name the
	// single document collection holding cluster-wide configuration,
	// such as the feature compatibility version.
	serverConfigurationDB         = "admin"
	serverConfigurationCollection = "system.version"
)

// Namespace identifies the collection an entry targets.
type Namespace struct {
	DB         string
	Collection string
}

// MakeNamespace returns the namespace for the given database and
// collection.
func MakeNamespace(db, collection string) Namespace {
	return Namespace{DB: db, Collection: collection}
}

// IsViewDefinitions returns whether this is a view-definitions
// collection, in any database.
func (ns Namespace) IsViewDefinitions() bool {
	return ns.Collection == viewsCollection
}

// IsServerConfiguration returns whether this is the server-configuration
// collection.
func (ns Namespace) IsServerConfiguration() bool {
	return ns.DB == serverConfigurationDB && ns.Collection == serverConfigurationCollection
}

// RequiresOwnBatch returns whether operations on this namespace must be
// applied in a batch of their own.
func (ns Namespace) RequiresOwnBatch() bool {
	return ns.IsViewDefinitions() || ns.IsServerConfiguration()
}

func (ns Namespace) String() string {
	return redact.StringWithoutMarkers(ns)
}

// SafeFormat implements the redact.SafeFormatter interface.
func (ns Namespace) SafeFormat(w redact.SafePrinter, _ rune) {
	if ns.Collection == "" {
		w.Print(ns.DB)
		return
	}
	w.Printf("%s.%s", ns.DB, ns.Collection)
}

var _ redact.SafeFormatter = Namespace{}
