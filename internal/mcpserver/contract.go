package mcpserver

// PipelineFormat describes the pipeline file for MCP clients that want to
// explain or propose changes to a build.
const PipelineFormat = `# mapforge Pipeline Format

The pipeline file is YAML. Keys are looked up by dotted path
(` + "`REGIONS.alps.FILES`" + `); an exact key match wins, otherwise keys match
case-insensitively.

## Shared sections

- ` + "`GENERAL.DATA_FOLDER`" + `: folder holding source rasters and raw masks.
- ` + "`GENERAL.OVERLAYS`" + `: default build order (list or "[a, b]" string).
- ` + "`GENERAL.quiet`" + `, ` + "`GENERAL.gdaldem`" + `, ` + "`GENERAL.gdaldem_compress`" + `,
  ` + "`GENERAL.gdal_calc_compress`" + `: flags shared by every command.
- ` + "`GDALBUILDVRT`" + `, ` + "`GDALWARP`" + `, ` + "`GDALDEM`" + `: flag sections. Scalars, lists and
  mappings are joined in document order.
- ` + "`REGIONS.<region>.FILES`" + ` and ` + "`REGIONS.<region>.EXTENT`" + `.
- ` + "`LAYERS.<region>.HILLSHADE`" + ` and ` + "`LAYERS.<region>.COLOR_RELIEF`" + `.

## Overlays

Every top-level section with a ` + "`COMMAND`" + ` key is an overlay. Outputs are named
` + "`<project>_<region>_<OUTPUT>.tif`" + ` (` + "`_prv`" + ` is appended for previews).

| COMMAND | Keys |
|---|---|
| build_dem | region FILES, EXTENT |
| hillshade | OUTPUT |
| color_relief | OUTPUT, COLOR_RAMP (optional) |
| prepare_mask | MASK_SUFFIX, LOWER_BOUND, UPPER_BOUND, BLEND_STRENGTH |
| masked_blend | OUTPUT, MASK_SUFFIX, INPUT_LAYERS.LAYER1/LAYER2, MERGE_OPTIONS |
| blend_layers | OUTPUT, CALC_EXPR, INPUT_LAYERS.LAYER1/LAYER2, MERGE_OPTIONS |
| adjust_color | INPUT_FILE, OUTPUT_FILE, PARAMETERS |

` + "`{project}`" + ` and ` + "`{region}`" + ` in COLOR_RAMP, INPUT_FILE and OUTPUT_FILE are
replaced with the build target.

## Rebuild rule

A command runs when it is forced, when its output is missing or older than
an input, or when its command text differs from the one that last produced
the output.
`
