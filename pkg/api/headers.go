package api

// Protocol version served by this implementation.
const ODataVersion = "4.0"

// Header names used by the protocol.
const (
	HeaderAccept            = "Accept"
	HeaderContentType       = "Content-Type"
	HeaderContentLength     = "Content-Length"
	HeaderContentID         = "Content-ID"
	HeaderETag              = "ETag"
	HeaderIfMatch           = "If-Match"
	HeaderIfNoneMatch       = "If-None-Match"
	HeaderLocation          = "Location"
	HeaderPrefer            = "Prefer"
	HeaderPreferenceApplied = "Preference-Applied"
	HeaderODataVersion      = "OData-Version"
	HeaderODataMaxVersion   = "OData-MaxVersion"
	HeaderODataIsolation    = "OData-Isolation"
	HeaderODataEntityID     = "OData-EntityId"
)
