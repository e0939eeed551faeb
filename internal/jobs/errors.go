package jobs

import "errors"

// ===========================================================================
// Lookup Errors
// ===========================================================================

// ErrDefinitionNotFound is returned when a request names an unknown job definition.
var ErrDefinitionNotFound = errors.New("job definition not found")

// ErrInstanceNotFound is returned when an instance id is unknown.
var ErrInstanceNotFound = errors.New("job instance not found")

// ErrCreatorNotFound is returned when no instance creator matches a request.
var ErrCreatorNotFound = errors.New("job instance creator not found")

// ===========================================================================
// Validation Errors
// ===========================================================================

// ErrParametersRequired is returned when the definition declares a
// parameters type and the request carries none.
var ErrParametersRequired = errors.New("job definition requires parameters")

// ErrParametersType is returned when request parameters are not of the
// definition's declared type.
var ErrParametersType = errors.New("parameters do not match the job definition type")

// ErrInvalidReplicationMode is returned for an unknown replication mode.
var ErrInvalidReplicationMode = errors.New("invalid replication mode")

// ErrUnknownParametersType is returned when a parameters type name is not registered.
var ErrUnknownParametersType = errors.New("unknown parameters type")

// ErrMissingDefinitionID is returned for requests or definitions without an id.
var ErrMissingDefinitionID = errors.New("job definition id is required")

// ===========================================================================
// Conflict Errors
// ===========================================================================

// ErrInstanceExists is returned by instance creation with FailIfExists set
// when the instance id or derived id is already stored.
var ErrInstanceExists = errors.New("job instance already exists")
