// Package enrich attaches additional labels to sensors before samples are
// built. Stages run in registration order on a copy of the snapshot.
package enrich
