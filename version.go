package walletgate

const VERSION = "0.4.1"
