package request

type ClaimUnitsRequest struct {
	Units []int `json:"units" binding:"required,min=1,max=100"`
}
