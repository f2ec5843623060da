package mcpserver

// VocabularyURI is the resource describing the attribute vocabulary.
const VocabularyURI = "tandem://vocabulary"

// Vocabulary explains the identifiers the tools accept and return, so an
// LLM client can read attribute definitions and build lookups.
const Vocabulary = `# Tandem Attribute Vocabulary

## Models and catalogs

A model is addressed by its URN (e.g. ` + "`urn:adsk.dtm:abc`" + `). Its catalog is a
JSON array: a version marker ` + "`\"pdb version dt N\"`" + ` followed by pairs of
attribute id and definition tuple.

## Qualified columns

Element values live in columns named ` + "`<family>:<column>`" + `.

| Family | Meaning |
|---|---|
| ` + "`n`" + ` | standard properties (name, category, classification) |
| ` + "`l`" + ` | references (parent, level, rooms) |
| ` + "`r`" + ` | properties imported from the design file |
| ` + "`z`" + ` | native parameters defined in the facility template |
| ` + "`v`" + ` | virtual, computed on read |
| ` + "`0`" + ` | viewer data (database id) |

Catalog attributes use their id as the column: id ` + "`101`" + ` of a design file
property is ` + "`r:101`" + `, native parameter ` + "`z9`" + ` is ` + "`z:z9`" + `.

## Data types

0 Unknown, 1 Boolean, 2 Integer, 3 Double, 4 Float, 10 BLOB, 11 DbKey,
20 String, 21 LocalizableString, 22 DateTime (ISO 8601), 23 GeoLocation
(ISO 6709), 24 Position, 25 URL.

## Flags

Bit 0 Hidden, bit 1 DtHashV2 (native parameters only), bit 3 ReadOnly,
bit 4 DtParam (native parameter).

## Identity hashes

Use ` + "`match_hash`" + ` to find the same attribute in every model, or
` + "`match_name`" + ` when only the category and name are known.

- Design file properties: ` + "`[category][name][forgeUnit][dataTypeContext]`" + `
  (the context is left empty when a unit is present).
- Native parameters with DtHashV2: ` + "`z[category][name][dataType]`" + `.
- Other native parameters: ` + "`[uuid][dataType]`" + `.

## Element keys

Scan results carry short keys (standard base64 of a 20 byte id). Cross-model
references use qualified keys: a 4 byte element flag and the id, URL-safe
base64 without padding. Use ` + "`qualify_key`" + ` and ` + "`decode_key`" + ` to convert.
Logical elements (types, levels, documents, streams) use flag 0x01000000.
`
