// Package serializer converts between protocol values (pkg/api) and their
// wire representations.
//
// Writers:
//
//   - JSON renders entities, entity collections, properties, the service
//     document and error bodies in the OData JSON format. Members are
//     emitted in a fixed order with control information (@odata.context,
//     @odata.etag, ...) first, using github.com/tidwall/sjson.
//   - XML renders the CSDL metadata document and XML error bodies.
//
// Readers:
//
//   - Deserializer parses JSON request bodies (entities, properties,
//     entity references, action parameters) against the EDM model using
//     github.com/tidwall/gjson.
//   - ParseBatch and WriteBatch handle multipart/mixed $batch payloads,
//     including nested changesets.
//
// For picks the writer for a negotiated content type.
package serializer
