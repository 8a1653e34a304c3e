package scrape

// Field names shared by the source schemas. Values are opaque text taken
// from the MyGAP listing pages.
const (
	FieldCertificationNo   = "no_pensijilan"
	FieldApplicantCategory = "kategori_pemohon"
	FieldName              = "nama"
	FieldState             = "negeri"
	FieldDistrict          = "daerah"
	FieldPlantType         = "jenis_tanaman"
	FieldCommodityCategory = "kategori_komoditi"
	FieldPlantCategory     = "kategori_tanaman"
	FieldHiveCount         = "bil_haif"
	FieldFarmArea          = "luas_ladang"
	FieldCertificationYear = "tahun_pensijilan"
	FieldCertificationDate = "tarikh_pensijilan"
	FieldValidityPeriod    = "tempoh_sah_laku"
)

// baseFields is the field order shared by all sources except AM
var baseFields = []string{
	FieldCertificationNo,
	FieldApplicantCategory,
	FieldName,
	FieldState,
	FieldDistrict,
	FieldPlantType,
	FieldCommodityCategory,
	FieldPlantCategory,
	FieldFarmArea,
	FieldCertificationYear,
	FieldCertificationDate,
	FieldValidityPeriod,
}

// amFields adds the apiary-specific hive count between the plant category
// and farm area columns
var amFields = []string{
	FieldCertificationNo,
	FieldApplicantCategory,
	FieldName,
	FieldState,
	FieldDistrict,
	FieldPlantType,
	FieldCommodityCategory,
	FieldPlantCategory,
	FieldHiveCount,
	FieldFarmArea,
	FieldCertificationYear,
	FieldCertificationDate,
	FieldValidityPeriod,
}

// Fields returns the ordered field schema for a source
func (s Source) Fields() []string {
	var schema []string
	if s == SourceAM {
		schema = amFields
	} else {
		schema = baseFields
	}
	out := make([]string, len(schema))
	copy(out, schema)
	return out
}
